package chatadapter

import (
	"testing"

	"github.com/lyraworks/qdc/internal/config"
)

func TestDLQTopic(t *testing.T) {
	if got := dlqTopic("responses"); got != "responses.dlq" {
		t.Errorf("dlqTopic(responses) = %q, want responses.dlq", got)
	}
}

func TestSplitCSV(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"broker1:9092", []string{"broker1:9092"}},
		{"broker1:9092, broker2:9092 ,broker3:9092", []string{"broker1:9092", "broker2:9092", "broker3:9092"}},
		{" , , ", nil},
	}
	for _, c := range cases {
		got := splitCSV(c.in)
		if len(got) != len(c.want) {
			t.Fatalf("splitCSV(%q) = %v, want %v", c.in, got, c.want)
		}
		for i := range got {
			if got[i] != c.want[i] {
				t.Errorf("splitCSV(%q)[%d] = %q, want %q", c.in, i, got[i], c.want[i])
			}
		}
	}
}

func TestNew_NoBrokersReturnsNilAdapter(t *testing.T) {
	adapter, err := New(config.ChatAdapterConfig{}, nil, 0, 0)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if adapter != nil {
		t.Errorf("expected nil adapter when no brokers configured")
	}
}
