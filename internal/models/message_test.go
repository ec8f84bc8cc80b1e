// ABOUTME: Tests for Message construction and role validation
// ABOUTME: Also covers the persisted-message conversions
package models

import (
	"strings"
	"testing"
)

func TestNewMessage(t *testing.T) {
	tests := []struct {
		name    string
		role    Role
		content string
		label   Label
		wantErr bool
	}{
		{"user message", RoleUser, "Hello", "", false},
		{"assistant with label", RoleAssistant, "Hi there", LabelGeneral, false},
		{"system message", RoleSystem, "You are helpful", "", false},
		{"empty user content", RoleUser, "", "", true},
		{"unknown role", Role("tool"), "x", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := NewMessage(tt.role, tt.content, tt.label)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewMessage() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if !strings.HasPrefix(m.MessageID, "msg_") {
				t.Errorf("MessageID = %q, want msg_ prefix", m.MessageID)
			}
			if m.Label != tt.label {
				t.Errorf("Label = %v, want %v", m.Label, tt.label)
			}
			if m.CreatedAt.IsZero() {
				t.Error("CreatedAt should be set")
			}
		})
	}
}

func TestStoredMessageRoundTrip(t *testing.T) {
	m, err := NewMessage(RoleAssistant, "answer", LabelKnowledge)
	if err != nil {
		t.Fatal(err)
	}
	stored := StoredFrom("conv_1", m)
	if stored.ConversationID != "conv_1" {
		t.Errorf("ConversationID = %q, want conv_1", stored.ConversationID)
	}
	back := stored.ToMessage()
	if back.MessageID != m.MessageID || back.Label != m.Label || back.Content != m.Content {
		t.Errorf("ToMessage() = %+v, want %+v", back, m)
	}
}

func TestParseDomain(t *testing.T) {
	for _, d := range Domains() {
		if _, err := ParseDomain(string(d)); err != nil {
			t.Errorf("ParseDomain(%q) error = %v", d, err)
		}
	}
	if _, err := ParseDomain("weather"); err == nil {
		t.Error("ParseDomain(weather) should fail")
	}
	if len(Domains()) != len(Labels)+1 {
		t.Errorf("Domains() = %d entries, want %d", len(Domains()), len(Labels)+1)
	}
}

func TestEmbedding_ValidateDimension(t *testing.T) {
	e := Embedding{ChunkID: "chunk_1", Vector: []float64{0.1, 0.2, 0.3}}
	if err := e.ValidateDimension(3); err != nil {
		t.Errorf("ValidateDimension(3) error = %v", err)
	}
	if err := e.ValidateDimension(4); err == nil {
		t.Error("ValidateDimension(4) should fail")
	}
	if err := (Embedding{ChunkID: "x"}).ValidateDimension(3); err == nil {
		t.Error("empty vector should fail")
	}
}
