package crypto

import (
	"bytes"
	"testing"

	"github.com/veilnet/veilnet/types"
)

var testKinds = []types.CryptoKind{KindVLD0, KindVLD1}

func TestSignVerify(t *testing.T) {
	for _, kind := range testKinds {
		pub, priv, err := GenerateKeyPair(kind)
		if err != nil {
			t.Fatal(err)
		}
		msg := []byte("this is a test")
		sig, err := Sign(kind, priv, msg)
		if err != nil {
			t.Fatal(err)
		}
		if !Verify(kind, pub, msg, sig) {
			t.Fatalf("%s: verification failed", kind)
		}
		if Verify(kind, pub, []byte("tampered"), sig) {
			t.Fatalf("%s: verification succeeded on tampered message", kind)
		}
	}
}

func TestComputeDH(t *testing.T) {
	for _, kind := range testKinds {
		aPub, aPriv, err := GenerateKeyPair(kind)
		if err != nil {
			t.Fatal(err)
		}
		bPub, bPriv, err := GenerateKeyPair(kind)
		if err != nil {
			t.Fatal(err)
		}
		s1, err := ComputeDH(kind, aPriv, bPub)
		if err != nil {
			t.Fatal(err)
		}
		s2, err := ComputeDH(kind, bPriv, aPub)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(s1, s2) {
			t.Fatalf("%s: DH shared secrets differ", kind)
		}
	}
}

func TestCachedDH(t *testing.T) {
	pub, priv, err := GenerateKeyPair(KindVLD0)
	if err != nil {
		t.Fatal(err)
	}
	otherPub, _, err := GenerateKeyPair(KindVLD0)
	if err != nil {
		t.Fatal(err)
	}
	s1, err := CachedDH(KindVLD0, priv, otherPub)
	if err != nil {
		t.Fatal(err)
	}
	s2, err := CachedDH(KindVLD0, priv, otherPub)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(s1, s2) {
		t.Fatal("cached DH result changed between calls")
	}
	_ = pub
}

func TestAEADRoundTrip(t *testing.T) {
	key := make([]byte, 32)
	nonce, err := RandomNonce()
	if err != nil {
		t.Fatal(err)
	}
	ad := []byte("associated")
	pt := []byte("hello, route")
	ct, err := AEADEncrypt(key, nonce, ad, pt)
	if err != nil {
		t.Fatal(err)
	}
	got, err := AEADDecrypt(key, nonce, ad, ct)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, pt) {
		t.Fatal("decrypted plaintext does not match")
	}
	ct[0] ^= 0xff
	if _, err := AEADDecrypt(key, nonce, ad, ct); err == nil {
		t.Fatal("decryption of tampered ciphertext should fail")
	}
}

func TestCryptNoAuth(t *testing.T) {
	key := make([]byte, 32)
	nonce, err := RandomNonce()
	if err != nil {
		t.Fatal(err)
	}
	pt := []byte("onion layer payload")
	ct, err := CryptNoAuth(key, nonce, pt)
	if err != nil {
		t.Fatal(err)
	}
	back, err := CryptNoAuth(key, nonce, ct)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(back, pt) {
		t.Fatal("crypt_no_auth is not its own inverse under the same key/nonce")
	}
}

func TestHashPasswordVerify(t *testing.T) {
	pw := []byte("correct horse battery staple")
	h, err := HashPassword(pw)
	if err != nil {
		t.Fatal(err)
	}
	ok, err := VerifyPassword(pw, h)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("VerifyPassword rejected the correct password")
	}
	ok, err = VerifyPassword([]byte("wrong password"), h)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("VerifyPassword accepted the wrong password")
	}
}

func TestDistance(t *testing.T) {
	a := []byte{0xff, 0x00, 0x0f}
	b := []byte{0x0f, 0xff, 0x00}
	d := Distance(a, b)
	want := []byte{0xf0, 0xff, 0x0f}
	if !bytes.Equal(d, want) {
		t.Fatalf("distance = %x, want %x", d, want)
	}
	if LeadingZeroBits(Distance(a, a)) != len(a)*8 {
		t.Fatal("distance to self should be all zero bits")
	}
}
