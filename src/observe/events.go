package observe

import (
	"encoding/json"
	"time"

	"github.com/rs/xid"
)

const (
	EventObserverBlockReorganization = "observer_block_reorganization"
	EventObserverLoopSuccess         = "observer_loop_success"
	EventObserverLoopFailure         = "observer_loop_failure"
)

// Event is published to the configured sink after notable observer
// activity. Consumers treat Data as opaque.
type Event struct {
	Id        string                 `json:"id"`
	Name      string                 `json:"name"`
	Timestamp int64                  `json:"timestamp"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

func NewEvent(name string, data map[string]interface{}) *Event {
	return &Event{
		Id:        xid.New().String(),
		Name:      name,
		Timestamp: time.Now().Unix(),
		Data:      data,
	}
}

func (self *Event) MarshalBinary() ([]byte, error) {
	return json.Marshal(self)
}
