// Copyright (c) 2025 The EDR developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package api

import (
	"bytes"
	"io"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/log"
)

// requestLoggerHandler logs every request, body included, through the given
// logger. Bodies are replayed so downstream handlers can still read them.
func requestLoggerHandler(handler http.Handler, logger log.Logger) http.Handler {
	fn := func(w http.ResponseWriter, r *http.Request) {
		var bodyBytes []byte
		var err error
		if r.Body != nil {
			bodyBytes, err = io.ReadAll(r.Body)
			if err != nil {
				logger.Warn("unexpected body read error", "err", err)
				return // don't pass bad request to the next handler
			}
			r.Body = io.NopCloser(bytes.NewReader(bodyBytes))
		}

		now := time.Now()
		handler.ServeHTTP(w, r)

		logger.Info("api request",
			"timestamp", now.Unix(),
			"duration", time.Since(now),
			"uri", r.URL.String(),
			"method", r.Method,
			"body", string(bodyBytes),
		)
	}

	return http.HandlerFunc(fn)
}
