package util

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	_ "embed"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"html"
	"strings"
)

//go:embed version.txt
var embeddedVersion string

// RsaKeyPair holds an actor signing key as PEM strings, the form the store
// and the actor document use.
type RsaKeyPair struct {
	Private string
	Public  string
}

func GetVersion() string {
	return strings.TrimSpace(embeddedVersion)
}

// GetNameAndVersion is the User-Agent sent on outbound federation requests.
func GetNameAndVersion() string {
	return fmt.Sprintf("%s / %s", Name, GetVersion())
}

// NormalizeInput flattens newlines and escapes HTML in user-supplied text.
func NormalizeInput(text string) string {
	return html.EscapeString(strings.ReplaceAll(text, "\n", " "))
}

func PrettyPrint(i interface{}) string {
	s, _ := json.MarshalIndent(i, "", " ")
	return string(s)
}

// GeneratePemKeypair mints a 2048-bit RSA keypair, both halves PKCS1
// encoded. Key generation failing means the system random source is
// broken, which is not recoverable.
func GeneratePemKeypair() *RsaKeyPair {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		panic(err)
	}
	return &RsaKeyPair{
		Private: encodePem("RSA PRIVATE KEY", x509.MarshalPKCS1PrivateKey(key)),
		Public:  encodePem("RSA PUBLIC KEY", x509.MarshalPKCS1PublicKey(&key.PublicKey)),
	}
}

func encodePem(blockType string, der []byte) string {
	return string(pem.EncodeToMemory(&pem.Block{Type: blockType, Bytes: der}))
}
