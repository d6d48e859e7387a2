package social

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// oauth1Header builds the OAuth 1.0a HMAC-SHA1 Authorization header for one
// Twitter API request. The nonce is derived from timestamp+url+method rather
// than randomness so that independent re-executions of the same logical call
// produce the same signed request.
func oauth1Header(method, baseURL string, creds TwitterCredentials, extraParams map[string]string, now time.Time) string {
	timestamp := strconv.FormatInt(now.Unix(), 10)

	nonceInput := timestamp + baseURL + method
	nonceHash := sha256.Sum256([]byte(nonceInput))
	nonce := hex.EncodeToString(nonceHash[:16])

	oauthParams := map[string]string{
		"oauth_consumer_key":     creds.APIKey,
		"oauth_nonce":            nonce,
		"oauth_signature_method": "HMAC-SHA1",
		"oauth_timestamp":        timestamp,
		"oauth_token":            creds.AccessToken,
		"oauth_version":          "1.0",
	}

	all := make([][2]string, 0, len(oauthParams)+len(extraParams))
	for k, v := range oauthParams {
		all = append(all, [2]string{k, v})
	}
	for k, v := range extraParams {
		all = append(all, [2]string{k, v})
	}
	sort.Slice(all, func(i, j int) bool { return all[i][0] < all[j][0] })

	pairs := make([]string, 0, len(all))
	for _, kv := range all {
		pairs = append(pairs, percentEncode(kv[0])+"="+percentEncode(kv[1]))
	}
	paramString := strings.Join(pairs, "&")

	signatureBase := strings.ToUpper(method) + "&" + percentEncode(baseURL) + "&" + percentEncode(paramString)
	signingKey := percentEncode(creds.APISecret) + "&" + percentEncode(creds.AccessTokenSecret)

	mac := hmac.New(sha1.New, []byte(signingKey))
	mac.Write([]byte(signatureBase))
	signature := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	return fmt.Sprintf(
		`OAuth oauth_consumer_key="%s", oauth_nonce="%s", oauth_signature="%s", oauth_signature_method="HMAC-SHA1", oauth_timestamp="%s", oauth_token="%s", oauth_version="1.0"`,
		percentEncode(creds.APIKey),
		percentEncode(nonce),
		percentEncode(signature),
		percentEncode(timestamp),
		percentEncode(creds.AccessToken),
	)
}

// percentEncode is RFC 3986 encoding as OAuth 1.0a requires it; url.Values
// encoding differs on space and tilde handling, so this is spelled out.
func percentEncode(input string) string {
	var b strings.Builder
	for i := 0; i < len(input); i++ {
		c := input[i]
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9',
			c == '-', c == '.', c == '_', c == '~':
			b.WriteByte(c)
		default:
			fmt.Fprintf(&b, "%%%02X", c)
		}
	}
	return b.String()
}
