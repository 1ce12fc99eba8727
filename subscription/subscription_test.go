package subscription

import (
	"encoding/json"
	"testing"

	"github.com/nostrkit/relaypool/filter"
)

func TestToReqFrameShape(t *testing.T) {
	sub := New("sub-1", filter.FilterList{{Kinds: []int{1}}})

	raw, err := sub.ToReqFrame()
	if err != nil {
		t.Fatalf("ToReqFrame: %v", err)
	}

	var frame []json.RawMessage
	if err := json.Unmarshal(raw, &frame); err != nil {
		t.Fatalf("unmarshal frame: %v", err)
	}
	if len(frame) != 3 {
		t.Fatalf("expected [REQ, id, filter], got %d elements", len(frame))
	}

	var label, id string
	if err := json.Unmarshal(frame[0], &label); err != nil || label != "REQ" {
		t.Fatalf("expected label REQ, got %s (err %v)", frame[0], err)
	}
	if err := json.Unmarshal(frame[1], &id); err != nil || id != "sub-1" {
		t.Fatalf("expected id sub-1, got %s (err %v)", frame[1], err)
	}
}

func TestToCloseFrameShape(t *testing.T) {
	sub := New("sub-1", nil)
	raw, err := sub.ToCloseFrame()
	if err != nil {
		t.Fatalf("ToCloseFrame: %v", err)
	}

	var frame []json.RawMessage
	if err := json.Unmarshal(raw, &frame); err != nil {
		t.Fatalf("unmarshal frame: %v", err)
	}
	if len(frame) != 2 {
		t.Fatalf("expected [CLOSE, id], got %d elements", len(frame))
	}
}

func TestToCountFrameIncludesEveryFilter(t *testing.T) {
	sub := New("sub-2", filter.FilterList{{Kinds: []int{1}}, {Kinds: []int{7}}})
	raw, err := sub.ToCountFrame()
	if err != nil {
		t.Fatalf("ToCountFrame: %v", err)
	}

	var frame []json.RawMessage
	if err := json.Unmarshal(raw, &frame); err != nil {
		t.Fatalf("unmarshal frame: %v", err)
	}
	if len(frame) != 4 {
		t.Fatalf("expected [COUNT, id, filter, filter], got %d elements", len(frame))
	}
}
