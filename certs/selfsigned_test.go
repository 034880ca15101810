package certs

import (
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"testing"
	"time"
)

func TestGenerate(t *testing.T) {
	t.Parallel()

	info, err := Generate(0)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if len(info.TLSCert.Certificate) != 1 {
		t.Fatalf("got %d certificates, want 1", len(info.TLSCert.Certificate))
	}
	cert, err := x509.ParseCertificate(info.TLSCert.Certificate[0])
	if err != nil {
		t.Fatalf("parse certificate: %v", err)
	}

	if cert.Subject.CommonName != "cadence" {
		t.Errorf("CommonName = %q, want %q", cert.Subject.CommonName, "cadence")
	}

	validity := cert.NotAfter.Sub(cert.NotBefore)
	if validity != defaultValidity {
		t.Errorf("validity = %v, want %v", validity, defaultValidity)
	}
	if !info.NotAfter.Equal(cert.NotAfter) {
		t.Error("CertInfo.NotAfter does not match the certificate")
	}

	foundLocalhost := false
	for _, name := range cert.DNSNames {
		if name == "localhost" {
			foundLocalhost = true
		}
	}
	if !foundLocalhost {
		t.Error("certificate missing localhost DNS name")
	}

	if got := sha256.Sum256(info.TLSCert.Certificate[0]); got != info.Fingerprint {
		t.Error("Fingerprint does not match SHA-256 of the DER certificate")
	}
	want := base64.StdEncoding.EncodeToString(info.Fingerprint[:])
	if info.FingerprintBase64() != want {
		t.Errorf("FingerprintBase64 = %q, want %q", info.FingerprintBase64(), want)
	}
}

func TestGenerateCustomValidity(t *testing.T) {
	t.Parallel()

	info, err := Generate(48 * time.Hour)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	cert, err := x509.ParseCertificate(info.TLSCert.Certificate[0])
	if err != nil {
		t.Fatalf("parse certificate: %v", err)
	}
	if validity := cert.NotAfter.Sub(cert.NotBefore); validity != 48*time.Hour {
		t.Errorf("validity = %v, want 48h", validity)
	}
}

func TestGenerateUniqueFingerprints(t *testing.T) {
	t.Parallel()

	a, err := Generate(0)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Generate(0)
	if err != nil {
		t.Fatal(err)
	}
	if a.Fingerprint == b.Fingerprint {
		t.Error("two generated certificates share a fingerprint")
	}
}
