package ws

import (
	"encoding/json"
	"testing"
)

func TestMarshalUnmarshal_RequestFrame(t *testing.T) {
	params, _ := json.Marshal(map[string]int{"limit": 20})
	orig := Frame{
		Type:   FrameTypeRequest,
		ID:     "req-1",
		Method: string(MethodHistory),
		Params: params,
	}

	data, err := MarshalFrame(orig)
	if err != nil {
		t.Fatalf("MarshalFrame: %v", err)
	}

	got, err := UnmarshalFrame(data)
	if err != nil {
		t.Fatalf("UnmarshalFrame: %v", err)
	}

	if got.Type != FrameTypeRequest {
		t.Fatalf("expected type %q, got %q", FrameTypeRequest, got.Type)
	}
	if got.ID != "req-1" {
		t.Fatalf("expected id %q, got %q", "req-1", got.ID)
	}
	if got.Method != string(MethodHistory) {
		t.Fatalf("expected method %q, got %q", MethodHistory, got.Method)
	}

	var p map[string]int
	if err := json.Unmarshal(got.Params, &p); err != nil {
		t.Fatalf("unmarshal params: %v", err)
	}
	if p["limit"] != 20 {
		t.Fatalf("expected params.limit %d, got %d", 20, p["limit"])
	}
}

func TestMarshalUnmarshal_ResponseFrame(t *testing.T) {
	ok := true
	payload, _ := json.Marshal(map[string]string{"status": "operational"})
	orig := Frame{
		Type:    FrameTypeResponse,
		ID:      "req-1",
		OK:      &ok,
		Payload: payload,
	}

	data, err := MarshalFrame(orig)
	if err != nil {
		t.Fatalf("MarshalFrame: %v", err)
	}

	got, err := UnmarshalFrame(data)
	if err != nil {
		t.Fatalf("UnmarshalFrame: %v", err)
	}

	if got.Type != FrameTypeResponse {
		t.Fatalf("expected type %q, got %q", FrameTypeResponse, got.Type)
	}
	if got.OK == nil || !*got.OK {
		t.Fatal("expected ok=true")
	}
}

func TestMarshalUnmarshal_EventFrame(t *testing.T) {
	payload, _ := json.Marshal(map[string]string{"taskId": "t-1"})
	orig := Frame{
		Type:     FrameTypeEvent,
		Event:    "task.claimed",
		WorkerID: "worker-2",
		Payload:  payload,
	}

	data, err := MarshalFrame(orig)
	if err != nil {
		t.Fatalf("MarshalFrame: %v", err)
	}

	got, err := UnmarshalFrame(data)
	if err != nil {
		t.Fatalf("UnmarshalFrame: %v", err)
	}

	if got.Type != FrameTypeEvent {
		t.Fatalf("expected type %q, got %q", FrameTypeEvent, got.Type)
	}
	if got.Event != "task.claimed" {
		t.Fatalf("expected event %q, got %q", "task.claimed", got.Event)
	}
	if got.WorkerID != "worker-2" {
		t.Fatalf("expected worker_id %q, got %q", "worker-2", got.WorkerID)
	}
}

func TestNewEventFrame(t *testing.T) {
	f, err := NewEventFrame("message.wake", "worker-1", map[string]string{"reason": "new tasks"})
	if err != nil {
		t.Fatalf("NewEventFrame: %v", err)
	}
	if f.Type != FrameTypeEvent {
		t.Fatalf("expected type %q, got %q", FrameTypeEvent, f.Type)
	}
	if f.Event != "message.wake" {
		t.Fatalf("expected event %q, got %q", "message.wake", f.Event)
	}
	if f.WorkerID != "worker-1" {
		t.Fatalf("expected worker_id %q, got %q", "worker-1", f.WorkerID)
	}

	var p map[string]string
	if err := json.Unmarshal(f.Payload, &p); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if p["reason"] != "new tasks" {
		t.Fatalf("expected payload.reason %q, got %q", "new tasks", p["reason"])
	}
}

func TestNewResponseFrame_OK(t *testing.T) {
	f, err := NewResponseFrame("req-5", true, map[string]string{"status": "done"}, "")
	if err != nil {
		t.Fatalf("NewResponseFrame: %v", err)
	}
	if f.Type != FrameTypeResponse {
		t.Fatalf("expected type %q, got %q", FrameTypeResponse, f.Type)
	}
	if f.ID != "req-5" {
		t.Fatalf("expected id %q, got %q", "req-5", f.ID)
	}
	if f.OK == nil || !*f.OK {
		t.Fatal("expected ok=true")
	}
	if f.Error != "" {
		t.Fatalf("expected no error, got %q", f.Error)
	}

	var p map[string]string
	if err := json.Unmarshal(f.Payload, &p); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if p["status"] != "done" {
		t.Fatalf("expected payload.status %q, got %q", "done", p["status"])
	}
}

func TestNewResponseFrame_Error(t *testing.T) {
	f, err := NewResponseFrame("req-6", false, nil, "something went wrong")
	if err != nil {
		t.Fatalf("NewResponseFrame: %v", err)
	}
	if f.OK == nil || *f.OK {
		t.Fatal("expected ok=false")
	}
	if f.Error != "something went wrong" {
		t.Fatalf("expected error %q, got %q", "something went wrong", f.Error)
	}
	if f.Payload != nil {
		t.Fatalf("expected nil payload, got %s", string(f.Payload))
	}
}
