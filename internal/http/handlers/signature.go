package handlers

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"net/http"
	"net/url"
	"sort"
	"strings"
)

// ValidateTelephonySignature checks the provider's HMAC-SHA1 webhook
// signature: base64(HMAC-SHA1(url + sorted form params, secret)).
func ValidateTelephonySignature(r *http.Request, secret, webhookURL string) bool {
	signature := r.Header.Get("X-Telephony-Signature")
	if signature == "" {
		signature = r.Header.Get("X-Twilio-Signature")
	}
	if signature == "" {
		return false
	}
	if err := r.ParseForm(); err != nil {
		return false
	}
	expected := computeSignature(signaturePayload(webhookURL, r.PostForm), secret)
	return hmac.Equal([]byte(signature), []byte(expected))
}

func signaturePayload(url string, params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var payload strings.Builder
	payload.WriteString(url)
	for _, key := range keys {
		for _, value := range params[key] {
			payload.WriteString(key)
			payload.WriteString(value)
		}
	}
	return payload.String()
}

func computeSignature(data, key string) string {
	h := hmac.New(sha1.New, []byte(key))
	h.Write([]byte(data))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}
