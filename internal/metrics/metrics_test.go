// forgekeeper - Minecraft server fleet supervisor
// Copyright 2026 The forgekeeper Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/forgekeeper/forgekeeper

package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSetServerStatusCounts(t *testing.T) {
	SetServerStatusCounts(map[string]int{"running": 3, "stopped": 1})

	if got := testutil.ToFloat64(ServerStatusCount.WithLabelValues("running")); got != 3 {
		t.Errorf("running count = %v, want 3", got)
	}
	if got := testutil.ToFloat64(ServerStatusCount.WithLabelValues("stopped")); got != 1 {
		t.Errorf("stopped count = %v, want 1", got)
	}
	if got := testutil.ToFloat64(ServerStatusCount.WithLabelValues("crashed")); got != 0 {
		t.Errorf("crashed count = %v, want 0 (zeroed on refresh)", got)
	}

	// A second refresh with fewer running servers must zero the gauge,
	// not merely leave the old value in place.
	SetServerStatusCounts(map[string]int{"stopped": 4})
	if got := testutil.ToFloat64(ServerStatusCount.WithLabelValues("running")); got != 0 {
		t.Errorf("running count after refresh = %v, want 0", got)
	}
}

func TestRecordLaunchFailureCrashAndTimeout(t *testing.T) {
	before := testutil.ToFloat64(LaunchFailuresTotal)
	RecordLaunchFailure()
	if got := testutil.ToFloat64(LaunchFailuresTotal); got != before+1 {
		t.Errorf("LaunchFailuresTotal = %v, want %v", got, before+1)
	}

	before = testutil.ToFloat64(StartupTimeoutsTotal)
	RecordStartupTimeout()
	if got := testutil.ToFloat64(StartupTimeoutsTotal); got != before+1 {
		t.Errorf("StartupTimeoutsTotal = %v, want %v", got, before+1)
	}

	before = testutil.ToFloat64(CrashesTotal)
	RecordCrash()
	if got := testutil.ToFloat64(CrashesTotal); got != before+1 {
		t.Errorf("CrashesTotal = %v, want %v", got, before+1)
	}
}

func TestRecordRconCommandObservesHistogram(t *testing.T) {
	RecordRconCommand(25 * time.Millisecond)
	if count := testutil.CollectAndCount(RconCommandDuration); count != 1 {
		t.Errorf("RconCommandDuration metric family count = %d, want 1", count)
	}
}

func TestSetRconBreakerState(t *testing.T) {
	SetRconBreakerState("127.0.0.1:25575", 2)
	if got := testutil.ToFloat64(RconBreakerState.WithLabelValues("127.0.0.1:25575")); got != 2 {
		t.Errorf("breaker state = %v, want 2 (open)", got)
	}
}

func TestRecordBackupExecutedAndSkipped(t *testing.T) {
	before := testutil.ToFloat64(BackupsExecutedTotal)
	RecordBackupExecuted()
	if got := testutil.ToFloat64(BackupsExecutedTotal); got != before+1 {
		t.Errorf("BackupsExecutedTotal = %v, want %v", got, before+1)
	}

	RecordBackupSkipped("not running")
	if got := testutil.ToFloat64(BackupsSkippedTotal.WithLabelValues("not running")); got < 1 {
		t.Errorf("BackupsSkippedTotal[not running] = %v, want >= 1", got)
	}
}

func TestRecordReconcileDriftCorrected(t *testing.T) {
	before := testutil.ToFloat64(ReconcileDriftCorrectedTotal.WithLabelValues("adopted"))
	RecordReconcileDriftCorrected("adopted")
	if got := testutil.ToFloat64(ReconcileDriftCorrectedTotal.WithLabelValues("adopted")); got != before+1 {
		t.Errorf("adopted drift count = %v, want %v", got, before+1)
	}
}

func TestRecordSubscriberOverflow(t *testing.T) {
	before := testutil.ToFloat64(SubscriberOverflowTotal.WithLabelValues("log"))
	RecordSubscriberOverflow("log")
	if got := testutil.ToFloat64(SubscriberOverflowTotal.WithLabelValues("log")); got != before+1 {
		t.Errorf("log overflow count = %v, want %v", got, before+1)
	}
}

func TestRecordAPIRequestAndActiveRequests(t *testing.T) {
	RecordAPIRequest("GET", "/healthz", "200", 5*time.Millisecond)
	if got := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("GET", "/healthz", "200")); got < 1 {
		t.Errorf("APIRequestsTotal = %v, want >= 1", got)
	}

	before := testutil.ToFloat64(APIActiveRequests)
	TrackActiveRequest(true)
	if got := testutil.ToFloat64(APIActiveRequests); got != before+1 {
		t.Errorf("APIActiveRequests after increment = %v, want %v", got, before+1)
	}
	TrackActiveRequest(false)
	if got := testutil.ToFloat64(APIActiveRequests); got != before {
		t.Errorf("APIActiveRequests after decrement = %v, want %v", got, before)
	}
}
