package model

import (
	"net/url"
	"strings"
)

// Store is a retailer the price checker knows how to read.
type Store struct {
	Key     string `json:"key"`
	Name    string `json:"name"`
	Domain  string `json:"domain"`
	Country string `json:"country"`
}

var SupportedStores = []Store{
	{Key: "amazon", Name: "Amazon", Domain: "amazon.com", Country: "US"},
	{Key: "ebay", Name: "eBay", Domain: "ebay.com", Country: "US"},
	{Key: "aliexpress", Name: "AliExpress", Domain: "aliexpress.com", Country: "CN"},
	{Key: "ksp", Name: "KSP", Domain: "ksp.co.il", Country: "IL"},
	{Key: "ivory", Name: "Ivory", Domain: "ivory.co.il", Country: "IL"},
	{Key: "bug", Name: "Bug", Domain: "bug.co.il", Country: "IL"},
	{Key: "zap", Name: "Zap", Domain: "zap.co.il", Country: "IL"},
}

// StoreForURL returns the supported store whose domain hosts rawURL.
func StoreForURL(rawURL string) (Store, bool) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return Store{}, false
	}
	host := strings.ToLower(u.Hostname())
	for _, s := range SupportedStores {
		if host == s.Domain || strings.HasSuffix(host, "."+s.Domain) {
			return s, true
		}
	}
	return Store{}, false
}
