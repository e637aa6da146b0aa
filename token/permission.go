package token

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Action is what a TopicPermission allows on its resource.
type Action string

const (
	Publish   Action = "publish"
	Subscribe Action = "subscribe"
)

// ParseAction accepts "publish" and "subscribe" in any case.
func ParseAction(s string) (Action, error) {
	switch a := Action(strings.ToLower(s)); a {
	case Publish, Subscribe:
		return a, nil
	}
	return "", fmt.Errorf("unknown action %q", s)
}

func (a *Action) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseAction(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

const resourceTypeTopic = "topic"

// Resource is the stream/prefix/topic pattern a permission applies to.
type Resource struct {
	Type   string `json:"type"`
	Stream string `json:"stream"`
	Prefix string `json:"prefix"`
	Topic  string `json:"topic"`
}

// TopicPermission grants an action on a topic pattern. It is comparable and
// can be used as a map key.
type TopicPermission struct {
	Action   Action   `json:"action"`
	Resource Resource `json:"resource"`
}

// NewTopicPermission builds a permission on a topic resource.
func NewTopicPermission(action Action, stream, prefix, topicPattern string) TopicPermission {
	return TopicPermission{
		Action: action,
		Resource: Resource{
			Type:   resourceTypeTopic,
			Stream: stream,
			Prefix: prefix,
			Topic:  topicPattern,
		},
	}
}

func (p TopicPermission) Stream() string       { return p.Resource.Stream }
func (p TopicPermission) Prefix() string       { return p.Resource.Prefix }
func (p TopicPermission) TopicPattern() string { return p.Resource.Topic }

// FullQualifiedTopicName returns "{prefix}/{stream}/{topic pattern}".
func (p TopicPermission) FullQualifiedTopicName() string {
	return fmt.Sprintf("%s/%s/%s", p.Resource.Prefix, p.Resource.Stream, p.Resource.Topic)
}

func (p TopicPermission) String() string {
	return fmt.Sprintf("%s %s", p.Action, p.FullQualifiedTopicName())
}
