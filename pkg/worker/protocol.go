package worker

import (
	"fmt"

	"github.com/goccy/go-json"

	"github.com/dd0wney/cluso-layout/pkg/force"
)

// MessageType identifies a message on the host/worker boundary
type MessageType string

const (
	MsgCalculateLayout MessageType = "CALCULATE_LAYOUT"
	MsgLayoutProgress  MessageType = "LAYOUT_PROGRESS"
	MsgLayoutComplete  MessageType = "LAYOUT_COMPLETE"
	MsgLayoutError     MessageType = "LAYOUT_ERROR"
)

// Message is the envelope of every frame exchanged with a worker.
// Payload holds a Request for CALCULATE_LAYOUT and a Result for progress
// and completion.
type Message struct {
	Type    MessageType     `json:"type"`
	ID      string          `json:"id"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Terminal reports whether the message ends its task
func (m *Message) Terminal() bool {
	return m.Type == MsgLayoutComplete || m.Type == MsgLayoutError
}

// Request asks a worker to lay out a node/edge batch
type Request struct {
	// ID correlates the request with its responses. Execute fills it with a
	// fresh uuid when empty.
	ID string `json:"-"`

	Nodes          []force.NodeSpec `json:"nodes"`
	Edges          []force.EdgeSpec `json:"edges"`
	LayoutType     string           `json:"layoutType"`
	Dimensions     int              `json:"dimensions"`
	Center         force.Vec3       `json:"center"`
	NodeStrength   float64          `json:"nodeStrength"`
	LinkDistance   float64          `json:"linkDistance"`
	LinkStrength   float64          `json:"linkStrength"`
	CenterStrength float64          `json:"centerStrength"`
	VelocityDecay  float64          `json:"velocityDecay"`
	Alpha          float64          `json:"alpha"`
	AlphaMin       float64          `json:"alphaMin"`
	AlphaDecay     float64          `json:"alphaDecay"`
	Iterations     int              `json:"iterations"`
}

// NewRequest flattens a simulation config into a request payload
func NewRequest(layoutType string, nodes []force.NodeSpec, edges []force.EdgeSpec, cfg force.Config) Request {
	return Request{
		Nodes:          nodes,
		Edges:          edges,
		LayoutType:     layoutType,
		Dimensions:     cfg.Dimensions(),
		Center:         cfg.Center,
		NodeStrength:   cfg.NodeStrength,
		LinkDistance:   cfg.LinkDistance,
		LinkStrength:   cfg.LinkStrength,
		CenterStrength: cfg.CenterStrength,
		VelocityDecay:  cfg.VelocityDecay,
		Alpha:          cfg.Alpha,
		AlphaMin:       cfg.AlphaMin,
		AlphaDecay:     cfg.AlphaDecay,
		Iterations:     cfg.Iterations,
	}
}

// Config rebuilds the simulation config carried by the request
func (r *Request) Config() force.Config {
	return force.Config{
		Center:         r.Center,
		NodeStrength:   r.NodeStrength,
		LinkDistance:   r.LinkDistance,
		LinkStrength:   r.LinkStrength,
		CenterStrength: r.CenterStrength,
		Alpha:          r.Alpha,
		AlphaDecay:     r.AlphaDecay,
		AlphaMin:       r.AlphaMin,
		VelocityDecay:  r.VelocityDecay,
		Iterations:     r.Iterations,
		Is3D:           r.Dimensions == 3,
	}
}

// NodePosition is one entry of a result payload
type NodePosition struct {
	ID string  `json:"id"`
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
	Z  float64 `json:"z"`
}

// Result is the payload of LAYOUT_PROGRESS and LAYOUT_COMPLETE
type Result struct {
	Nodes        []NodePosition `json:"nodes"`
	Progress     float64        `json:"progress"`
	Iteration    int            `json:"iteration"`
	Alpha        float64        `json:"alpha"`
	DurationMs   float64        `json:"durationMs"`
	DroppedEdges []string       `json:"droppedEdges,omitempty"`
}

func newMessage(t MessageType, id string, payload any) (*Message, error) {
	msg := &Message{Type: t, ID: id}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", t, err)
		}
		msg.Payload = raw
	}
	return msg, nil
}

func errorMessage(id string, err error) *Message {
	return &Message{Type: MsgLayoutError, ID: id, Error: err.Error()}
}

// DecodeRequest unmarshals a CALCULATE_LAYOUT payload
func (m *Message) DecodeRequest() (*Request, error) {
	if m.Type != MsgCalculateLayout {
		return nil, fmt.Errorf("unexpected message type %s", m.Type)
	}
	var req Request
	if err := json.Unmarshal(m.Payload, &req); err != nil {
		return nil, fmt.Errorf("decode request %s: %w", m.ID, err)
	}
	req.ID = m.ID
	return &req, nil
}

// DecodeResult unmarshals a progress or completion payload
func (m *Message) DecodeResult() (*Result, error) {
	var res Result
	if err := json.Unmarshal(m.Payload, &res); err != nil {
		return nil, fmt.Errorf("decode result %s: %w", m.ID, err)
	}
	return &res, nil
}
