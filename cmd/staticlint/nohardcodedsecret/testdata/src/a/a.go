package a

type token struct{}

func (token) SignedString(key interface{}) (string, error) {
	return "", nil
}

type keys struct {
	signing []byte
}

func sign(t token, k keys) {
	_, _ = t.SignedString("secret")                  // want "token signing key must not be a literal"
	_, _ = t.SignedString([]byte("secret"))          // want "token signing key must not be a literal"
	_, _ = t.SignedString([]byte{0x73, 0x65, 0x63}) // want "token signing key must not be a literal"
	_, _ = t.SignedString(k.signing)
	_, _ = t.SignedString([]byte(loadSecret()))
}

func loadSecret() string {
	return ""
}
