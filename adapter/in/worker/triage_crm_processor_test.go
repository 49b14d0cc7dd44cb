package worker

import (
	"context"
	"testing"
)

func TestCRMSyncSkipsWithoutCRM(t *testing.T) {
	p := NewCRMSyncProcessor(nil, nil)
	msg := NewMessage(JobCRMSync, map[string]any{"thread_id": int64(7)})

	if err := p.ProcessSync(context.Background(), msg); err != nil {
		t.Fatalf("ProcessSync: %v", err)
	}
}
