package auth

import (
	"strings"
	"testing"
)

func TestCheckPasswordHash(t *testing.T) {
	hash, err := hashPassword("engine42", 4)
	if err != nil {
		t.Fatalf("hashPassword() error = %v", err)
	}

	tests := []struct {
		name     string
		hash     string
		password string
		want     bool
		wantErr  bool
	}{
		{"match", hash, "engine42", true, false},
		{"mismatch", hash, "engine43", false, false},
		{"over bcrypt limit", hash, "engine42" + strings.Repeat("x", 70), false, false},
		{"broken hash", "not-a-hash", "engine42", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := checkPasswordHash(tt.hash, tt.password)
			if (err != nil) != tt.wantErr {
				t.Fatalf("checkPasswordHash() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("checkPasswordHash() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHashPassword_OutOfRangeCostFallsBack(t *testing.T) {
	hash, err := hashPassword("engine42", 99)
	if err != nil {
		t.Fatalf("hashPassword() error = %v", err)
	}
	if ok, _ := checkPasswordHash(hash, "engine42"); !ok {
		t.Error("hash should match password")
	}
}
