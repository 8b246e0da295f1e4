// Copyright (c) 2025 The EDR developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package state

import "github.com/mezosphere/edr/metrics"

var metricMutationCount = metrics.LazyLoadCounterVec("state_mutation_count", []string{"type"})
