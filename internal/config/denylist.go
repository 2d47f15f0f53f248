package config

// DefaultDenylistDomains returns sensitive domains that are left out of
// collected aggregates when collect.exclude_sensitive is enabled. Matching is
// by domain suffix, so "chase.com" also covers "secure.chase.com".
func DefaultDenylistDomains() []string {
	return []string{
		// Banking & payments
		"chase.com",
		"bankofamerica.com",
		"wellsfargo.com",
		"citi.com",
		"capitalone.com",
		"schwab.com",
		"fidelity.com",
		"vanguard.com",
		"paypal.com",
		"venmo.com",

		// Password managers
		"1password.com",
		"lastpass.com",
		"bitwarden.com",
		"dashlane.com",

		// Sign-in providers
		"accounts.google.com",
		"login.microsoftonline.com",
		"login.live.com",
		"okta.com",
		"auth0.com",

		// Health
		"mychart.com",
		"kp.org",
		"healthcare.gov",

		// Government & tax
		"irs.gov",
		"ssa.gov",
		"login.gov",
		"id.me",

		// Crypto
		"coinbase.com",
		"binance.com",
		"kraken.com",
	}
}
