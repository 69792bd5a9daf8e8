package sign

import (
	"crypto/ed25519"
	"testing"
)

func testKey(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	seed := make([]byte, ed25519.SeedSize)
	for i := range seed {
		seed[i] = byte(i)
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return priv.Public().(ed25519.PublicKey), priv
}

func TestSignIsDeterministic(t *testing.T) {
	_, priv := testKey(t)
	req := StakeRequest{
		PublisherPrincipal: "poster-abc",
		PostID:             42,
		Amount:             100,
		Direction:          DirectionHot,
	}

	sig1, err := Sign(priv, req)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	sig2, err := Sign(priv, req)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if sig1 != sig2 {
		t.Errorf("same request signed twice gave different signatures:\n%s\n%s", sig1, sig2)
	}
}

func TestSignIsFieldSensitive(t *testing.T) {
	_, priv := testKey(t)
	base := StakeRequest{
		PublisherPrincipal: "poster-abc",
		PostID:             42,
		Amount:             100,
		Direction:          DirectionHot,
	}
	baseSig, err := Sign(priv, base)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	mutations := map[string]StakeRequest{
		"publisher": {PublisherPrincipal: "poster-xyz", PostID: 42, Amount: 100, Direction: DirectionHot},
		"post id":   {PublisherPrincipal: "poster-abc", PostID: 43, Amount: 100, Direction: DirectionHot},
		"amount":    {PublisherPrincipal: "poster-abc", PostID: 42, Amount: 200, Direction: DirectionHot},
		"direction": {PublisherPrincipal: "poster-abc", PostID: 42, Amount: 100, Direction: DirectionNot},
	}
	for name, mutated := range mutations {
		sig, err := Sign(priv, mutated)
		if err != nil {
			t.Fatalf("Sign(%s): %v", name, err)
		}
		if sig == baseSig {
			t.Errorf("changing %s did not change the signature", name)
		}
	}
}

func TestSignRejectsBadKey(t *testing.T) {
	req := StakeRequest{PublisherPrincipal: "p", PostID: 1, Amount: 1}
	if _, err := Sign(ed25519.PrivateKey("short"), req); err == nil {
		t.Fatal("Sign with truncated key must fail")
	}
}

func TestVerifyRoundTrip(t *testing.T) {
	pub, priv := testKey(t)
	req := StakeRequest{PublisherPrincipal: "poster", PostID: 7, Amount: 50, Direction: DirectionNot}

	sig, err := Sign(priv, req)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if err := Verify(pub, req, sig); err != nil {
		t.Errorf("Verify of a valid signature failed: %v", err)
	}

	tampered := req
	tampered.Amount = 51
	if err := Verify(pub, tampered, sig); err == nil {
		t.Error("Verify accepted a signature for a tampered request")
	}
}

func TestCanonicalBytesUnambiguous(t *testing.T) {
	// The principal is length-prefixed, so shifting bytes between the
	// principal and the numeric fields must change the encoding.
	a := StakeRequest{PublisherPrincipal: "ab", PostID: 0x63}
	b := StakeRequest{PublisherPrincipal: "abc", PostID: 0}
	if string(a.CanonicalBytes()) == string(b.CanonicalBytes()) {
		t.Error("distinct requests share canonical bytes")
	}
}
