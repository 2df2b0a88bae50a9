package model

import "testing"

func TestCursorLessOrdersByTimestampThenChainThenBlockThenLogIndex(t *testing.T) {
	cases := []struct {
		name string
		a, b Cursor
		want bool
	}{
		{"earlier timestamp", Cursor{Timestamp: 1}, Cursor{Timestamp: 2}, true},
		{"later timestamp", Cursor{Timestamp: 2}, Cursor{Timestamp: 1}, false},
		{"same timestamp, lower chain", Cursor{Timestamp: 1, ChainID: 1}, Cursor{Timestamp: 1, ChainID: 2}, true},
		{"same timestamp and chain, lower block", Cursor{Timestamp: 1, ChainID: 1, BlockNumber: 5}, Cursor{Timestamp: 1, ChainID: 1, BlockNumber: 6}, true},
		{"same through block, lower log index", Cursor{Timestamp: 1, ChainID: 1, BlockNumber: 5, LogIndex: 0}, Cursor{Timestamp: 1, ChainID: 1, BlockNumber: 5, LogIndex: 1}, true},
		{"identical cursors", Cursor{Timestamp: 1, ChainID: 1, BlockNumber: 5, LogIndex: 0}, Cursor{Timestamp: 1, ChainID: 1, BlockNumber: 5, LogIndex: 0}, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := c.a.Less(c.b); got != c.want {
				t.Errorf("Less() = %v, want %v", got, c.want)
			}
		})
	}
}

func TestLogTopicOutOfRangeReturnsEmpty(t *testing.T) {
	l := Log{Topics: []string{"0xa", "0xb"}}
	if got := l.Topic(2); got != "" {
		t.Errorf("Topic(2) = %q, want empty", got)
	}
	if got := l.Topic(-1); got != "" {
		t.Errorf("Topic(-1) = %q, want empty", got)
	}
	if got := l.Topic(0); got != "0xa" {
		t.Errorf("Topic(0) = %q, want 0xa", got)
	}
}
