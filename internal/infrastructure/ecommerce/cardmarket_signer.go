package ecommerce

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cardvault/backend/internal/domain/integration"
)

// cardMarketSigner signs requests with OAuth 1.0a HMAC-SHA1 using the static app and access tokens.
// CardMarket requires the realm to be the request URL without its query.
type cardMarketSigner struct {
	cred  integration.CardMarketCredential
	now   func() time.Time
	nonce func() string
}

func newCardMarketSigner(cred integration.CardMarketCredential) *cardMarketSigner {
	return &cardMarketSigner{
		cred:  cred,
		now:   time.Now,
		nonce: func() string { return strings.ReplaceAll(uuid.NewString(), "-", "") },
	}
}

// Authorization returns the Authorization header value for a request
func (s *cardMarketSigner) Authorization(method, rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	query := u.Query()
	u.RawQuery = ""
	u.Fragment = ""
	realm := u.String()

	params := map[string]string{
		"oauth_consumer_key":     s.cred.AppToken,
		"oauth_token":            s.cred.AccessToken,
		"oauth_nonce":            s.nonce(),
		"oauth_timestamp":        strconv.FormatInt(s.now().Unix(), 10),
		"oauth_signature_method": "HMAC-SHA1",
		"oauth_version":          "1.0",
	}
	signed := make(map[string]string, len(params)+len(query))
	for k, v := range params {
		signed[k] = v
	}
	for k, values := range query {
		if len(values) > 0 {
			signed[k] = values[0]
		}
	}
	params["oauth_signature"] = s.Sign(method, realm, signed)

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	fmt.Fprintf(&b, "OAuth realm=\"%s\"", oauthEscape(realm))
	for _, k := range keys {
		fmt.Fprintf(&b, ", %s=\"%s\"", k, oauthEscape(params[k]))
	}
	return b.String(), nil
}

// Sign computes the base64 HMAC-SHA1 signature over the OAuth signature base string:
// METHOD & escaped(url) & escaped(sorted key=value pairs)
func (s *cardMarketSigner) Sign(method, baseURL string, params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, oauthEscape(k)+"="+oauthEscape(params[k]))
	}
	base := strings.ToUpper(method) + "&" + oauthEscape(baseURL) + "&" + oauthEscape(strings.Join(pairs, "&"))

	key := oauthEscape(s.cred.AppSecret) + "&" + oauthEscape(s.cred.AccessTokenSecret)
	h := hmac.New(sha1.New, []byte(key))
	h.Write([]byte(base))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// oauthEscape percent-encodes per RFC 3986 as OAuth 1.0 requires
func oauthEscape(s string) string {
	escaped := url.QueryEscape(s)
	escaped = strings.ReplaceAll(escaped, "+", "%20")
	return strings.ReplaceAll(escaped, "%7E", "~")
}
