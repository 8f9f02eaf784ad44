package hostwatch

import (
	"testing"
	"time"
)

func TestNewAgentTarget(t *testing.T) {
	agent, err := NewAgentTarget("web-01", "10.0.0.5:9931")
	if err != nil {
		t.Fatalf("NewAgentTarget() error = %v", err)
	}

	if agent.Name() != "web-01" {
		t.Errorf("Name() = %q, want %q", agent.Name(), "web-01")
	}
	if agent.Address() != "10.0.0.5:9931" {
		t.Errorf("Address() = %q, want %q", agent.Address(), "10.0.0.5:9931")
	}
	if agent.Timeout() != defaultAgentTimeout {
		t.Errorf("Timeout() = %v, want default %v", agent.Timeout(), defaultAgentTimeout)
	}
	if agent.Interval() != 0 {
		t.Errorf("Interval() = %v, want 0 (use global)", agent.Interval())
	}
}

func TestNewAgentTarget_Validation(t *testing.T) {
	tests := []struct {
		name      string
		agentName string
		address   string
		opts      []AgentOption
	}{
		{"empty name", "", "10.0.0.5:9931", nil},
		{"address without port", "web-01", "10.0.0.5", nil},
		{"empty address", "web-01", "", nil},
		{"odd label pairs", "web-01", "10.0.0.5:9931", []AgentOption{WithLabels("env")}},
		{"zero timeout", "web-01", "10.0.0.5:9931", []AgentOption{WithTimeout(0)}},
		{"negative timeout", "web-01", "10.0.0.5:9931", []AgentOption{WithTimeout(-time.Second)}},
		{"interval below 1s", "web-01", "10.0.0.5:9931", []AgentOption{WithInterval(500 * time.Millisecond)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewAgentTarget(tt.agentName, tt.address, tt.opts...); err == nil {
				t.Error("NewAgentTarget() error = nil, want error")
			}
		})
	}
}

func TestNewAgentTarget_Options(t *testing.T) {
	agent, err := NewAgentTarget("web-01", "10.0.0.5:9931",
		WithLabels("env", "prod", "region", "eu-west"),
		WithTimeout(5*time.Second),
		WithInterval(30*time.Second),
	)
	if err != nil {
		t.Fatalf("NewAgentTarget() error = %v", err)
	}

	labels := agent.Labels()
	if labels["env"] != "prod" || labels["region"] != "eu-west" {
		t.Errorf("Labels() = %v, want env=prod region=eu-west", labels)
	}
	if agent.Timeout() != 5*time.Second {
		t.Errorf("Timeout() = %v, want 5s", agent.Timeout())
	}
	if agent.Interval() != 30*time.Second {
		t.Errorf("Interval() = %v, want 30s", agent.Interval())
	}
}

func TestAgentTarget_LabelsCopied(t *testing.T) {
	agent, err := NewAgentTarget("web-01", "10.0.0.5:9931", WithLabels("env", "prod"))
	if err != nil {
		t.Fatalf("NewAgentTarget() error = %v", err)
	}

	// mutating the returned map must not affect the target
	labels := agent.Labels()
	labels["env"] = "hacked"

	if agent.Labels()["env"] != "prod" {
		t.Error("Labels() exposed internal state to mutation")
	}
}

func TestNewAgentTarget_IPv6(t *testing.T) {
	agent, err := NewAgentTarget("v6", "[::1]:9931")
	if err != nil {
		t.Fatalf("NewAgentTarget() error = %v", err)
	}
	if agent.Address() != "[::1]:9931" {
		t.Errorf("Address() = %q, want %q", agent.Address(), "[::1]:9931")
	}
}
