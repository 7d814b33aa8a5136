package exchange

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strconv"
	"time"
)

// loginSignaturePath is the fixed request path OKX requires the login
// signature be computed over (§6.3).
const loginSignaturePath = "/users/self/verify"

// signLogin computes the base64 HMAC-SHA256 login signature OKX expects
// over `timestamp + "GET" + "/users/self/verify"`, keyed by secret.
func signLogin(secret string, timestamp string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp + "GET" + loginSignaturePath))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func nowTimestamp() string {
	return strconv.FormatInt(time.Now().Unix(), 10)
}
