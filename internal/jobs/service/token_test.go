package service

import (
	"errors"
	"testing"
	"time"
)

func TestIssueTokenRandomness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		token, err := IssueToken()
		if err != nil {
			t.Fatalf("IssueToken failed: %v", err)
		}
		// 32字节原始熵，RawURL编码后43字符
		if len(token) != 43 {
			t.Fatalf("Expected 43-char token, got %d: %q", len(token), token)
		}
		if seen[token] {
			t.Fatalf("Duplicate token issued: %q", token)
		}
		seen[token] = true
	}
}

func TestHashTokenDeterministic(t *testing.T) {
	token, err := IssueToken()
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}
	h1 := HashToken(token)
	h2 := HashToken(token)
	if h1 != h2 {
		t.Errorf("Hash not deterministic: %q vs %q", h1, h2)
	}
	if len(h1) != 64 {
		t.Errorf("Expected 64-char hex digest, got %d", len(h1))
	}
	if h1 == token {
		t.Error("Digest must differ from raw token")
	}
}

func TestVerifyToken(t *testing.T) {
	token, _ := IssueToken()
	digest := HashToken(token)
	future := time.Now().Add(time.Hour)
	past := time.Now().Add(-time.Hour)

	if err := VerifyToken(token, digest, &future); err != nil {
		t.Errorf("Expected valid token to verify, got %v", err)
	}

	// 改动任意一个字符必须失败
	mutated := []byte(token)
	if mutated[0] == 'A' {
		mutated[0] = 'B'
	} else {
		mutated[0] = 'A'
	}
	if err := VerifyToken(string(mutated), digest, &future); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for mutated token, got %v", err)
	}

	if err := VerifyToken(token, digest, &past); !errors.Is(err, ErrExpired) {
		t.Errorf("Expected ErrExpired for past expiry, got %v", err)
	}

	if err := VerifyToken(token, digest, nil); !errors.Is(err, ErrExpired) {
		t.Errorf("Expected ErrExpired for nil expiry, got %v", err)
	}
}
