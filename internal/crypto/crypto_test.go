package crypto

import (
	"bytes"
	"testing"
)

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	enc, err := NewEncryptor("test-passphrase")
	if err != nil {
		t.Fatalf("NewEncryptor() error = %v", err)
	}

	tests := []struct {
		name      string
		plaintext []byte
	}{
		{"short", []byte("hello")},
		{"json payload", []byte(`{"request":{"model":"gpt-4o","prompt":"What is 2+2?"}}`)},
		{"empty", []byte{}},
		{"binary", []byte{0x00, 0xff, 0x10, 0x80}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ciphertext, err := enc.Encrypt(tt.plaintext)
			if err != nil {
				t.Fatalf("Encrypt() error = %v", err)
			}

			got, err := enc.Decrypt(ciphertext)
			if err != nil {
				t.Fatalf("Decrypt() error = %v", err)
			}
			if !bytes.Equal(got, tt.plaintext) {
				t.Errorf("round trip = %q, want %q", got, tt.plaintext)
			}
		})
	}
}

func TestEncrypt_NonceVaries(t *testing.T) {
	enc, _ := NewEncryptor("key")

	c1, _ := enc.Encrypt([]byte("same input"))
	c2, _ := enc.Encrypt([]byte("same input"))
	if c1 == c2 {
		t.Error("expected different ciphertexts for the same plaintext")
	}
}

func TestDecrypt_WrongKey(t *testing.T) {
	enc1, _ := NewEncryptor("key-one")
	enc2, _ := NewEncryptor("key-two")

	ciphertext, _ := enc1.Encrypt([]byte("secret"))
	if _, err := enc2.Decrypt(ciphertext); err == nil {
		t.Error("expected error decrypting with a different key")
	}
}

func TestDecrypt_Malformed(t *testing.T) {
	enc, _ := NewEncryptor("key")

	for _, input := range []string{"", "not-base64!!!", "dG9vc2hvcnQ="} {
		if _, err := enc.Decrypt(input); err == nil {
			t.Errorf("Decrypt(%q) expected error", input)
		}
	}
}

func TestNewEncryptor_EmptyKey(t *testing.T) {
	if _, err := NewEncryptor(""); err != ErrEmptyKey {
		t.Errorf("expected ErrEmptyKey, got %v", err)
	}
}
