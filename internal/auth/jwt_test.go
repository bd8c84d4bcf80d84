package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestGenerateAndValidate(t *testing.T) {
	mgr := NewJWTManager("test-secret")

	token, err := mgr.GenerateToken("overlay-1")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	claims, err := mgr.ValidateToken(token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.ClientID != "overlay-1" {
		t.Errorf("client ID = %q, want overlay-1", claims.ClientID)
	}
}

func TestValidate_WrongSecret(t *testing.T) {
	token, err := NewJWTManager("secret-a").GenerateToken("overlay-1")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := NewJWTManager("secret-b").ValidateToken(token); err != ErrInvalidToken {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
}

func TestValidate_Garbage(t *testing.T) {
	mgr := NewJWTManager("test-secret")
	if _, err := mgr.ValidateToken("not.a.token"); err != ErrInvalidToken {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
}

func TestValidate_Expired(t *testing.T) {
	mgr := NewJWTManager("test-secret")

	claims := &Claims{
		ClientID: "overlay-1",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-2 * time.Hour)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatal(err)
	}

	if _, err := mgr.ValidateToken(signed); err != ErrInvalidToken {
		t.Errorf("expected ErrInvalidToken for expired token, got %v", err)
	}
}

func TestValidate_WrongAlgorithm(t *testing.T) {
	mgr := NewJWTManager("test-secret")

	token := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{ClientID: "overlay-1"})
	signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := mgr.ValidateToken(signed); err != ErrInvalidToken {
		t.Errorf("expected ErrInvalidToken for alg=none, got %v", err)
	}
}
