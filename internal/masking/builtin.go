package masking

import "regexp"

// fixedPattern builds a catalog rule with a fixed placeholder.
func fixedPattern(id, name, source, placeholder string, cat Category, sev Severity, priority int) Pattern {
	return Pattern{
		ID:          id,
		Name:        name,
		Regexp:      regexp.MustCompile(source),
		Replacement: Fixed(placeholder),
		Label:       placeholderLabel(placeholder),
		Category:    cat,
		Severity:    sev,
		Priority:    priority,
	}
}

// contextPattern builds a catalog rule whose placeholder is rebuilt from the
// matched text, so surrounding key names, separators, and quote style
// survive the substitution. template uses the source's capture groups.
func contextPattern(id, name, source, template, label string, cat Category, sev Severity, priority int) Pattern {
	re := regexp.MustCompile(source)
	return Pattern{
		ID:     id,
		Name:   name,
		Regexp: re,
		Replacement: Computed(func(match string) string {
			return re.ReplaceAllString(match, template)
		}),
		Label:    label,
		Category: cat,
		Severity: sev,
		Priority: priority,
	}
}

func inactive(p Pattern) Pattern {
	p.Inactive = true
	return p
}

// builtinPatterns is the immutable process-wide rule catalog. Priorities
// order span claiming: the private key block and full connection URLs run
// first so they take whole spans before narrower rules see them, and the
// generic assignment rules run last so every specific rule wins overlaps
// against them.
var builtinPatterns = []Pattern{
	// private-keys
	fixedPattern("private_key_block", "Private Key Block",
		`-----BEGIN [A-Z ]*PRIVATE KEY(?: BLOCK)?-----(?s:.*?)-----END [A-Z ]*PRIVATE KEY(?: BLOCK)?-----`,
		"[PRIVATE_KEY]", CategoryPrivateKeys, SeverityHigh, 5),

	// database
	contextPattern("database_url", "Database Connection URL",
		`\b(postgres|postgresql|mysql|mariadb|mongodb(?:\+srv)?|redis|rediss|amqp|amqps)://([^\s:@/]+):([^\s@]+)@([^\s/]+)(?:/[^\s]*)?`,
		`${1}://[USER]:[PASS]@[HOST]`, "USER",
		CategoryDatabase, SeverityHigh, 10),

	// cloud-keys
	fixedPattern("aws_access_key", "AWS Access Key ID",
		`\b(?:AKIA|ASIA)[0-9A-Z]{16}\b`,
		"[AWS_KEY]", CategoryCloudKeys, SeverityHigh, 10),
	contextPattern("aws_secret_key", "AWS Secret Access Key",
		`(?i)\b(aws[_\- ]?secret[_\- ]?(?:access[_\- ]?)?key['"]?\s*[:=]\s*['"]?)([A-Za-z0-9/+=]{40})(['"]?)`,
		`${1}[AWS_SECRET]${3}`, "AWS_SECRET",
		CategoryCloudKeys, SeverityHigh, 15),
	fixedPattern("google_api_key", "Google API Key",
		`\bAIza[0-9A-Za-z_\-]{35}`,
		"[GOOGLE_API_KEY]", CategoryCloudKeys, SeverityHigh, 15),
	fixedPattern("age_secret_key", "age Secret Key",
		`\bAGE-SECRET-KEY-1[0-9A-Z]{58}\b`,
		"[AGE_SECRET_KEY]", CategoryCloudKeys, SeverityHigh, 15),

	// api-tokens
	fixedPattern("github_token", "GitHub Token",
		`\bgh[pousr]_[A-Za-z0-9]{30,255}\b`,
		"[GITHUB_TOKEN]", CategoryAPITokens, SeverityHigh, 10),
	fixedPattern("github_pat", "GitHub Fine-Grained PAT",
		`\bgithub_pat_[A-Za-z0-9_]{22,255}\b`,
		"[GITHUB_PAT]", CategoryAPITokens, SeverityHigh, 10),
	fixedPattern("gitlab_token", "GitLab Personal Access Token",
		`\bglpat-[A-Za-z0-9_\-]{20,40}`,
		"[GITLAB_TOKEN]", CategoryAPITokens, SeverityHigh, 10),
	fixedPattern("slack_token", "Slack Token",
		`\bxox[baprs]-[A-Za-z0-9\-]{10,250}`,
		"[SLACK_TOKEN]", CategoryAPITokens, SeverityHigh, 10),
	fixedPattern("anthropic_key", "Anthropic API Key",
		`\bsk-ant-[A-Za-z0-9_\-]{24,}`,
		"[ANTHROPIC_KEY]", CategoryAPITokens, SeverityHigh, 10),
	fixedPattern("stripe_secret_key", "Stripe Secret Key",
		`\b[rs]k_live_[A-Za-z0-9]{24,247}\b`,
		"[STRIPE_KEY]", CategoryAPITokens, SeverityHigh, 10),
	fixedPattern("sendgrid_key", "SendGrid API Key",
		`\bSG\.[A-Za-z0-9_\-]{22}\.[A-Za-z0-9_\-]{43}`,
		"[SENDGRID_KEY]", CategoryAPITokens, SeverityHigh, 10),
	fixedPattern("npm_token", "npm Access Token",
		`\bnpm_[A-Za-z0-9]{36}\b`,
		"[NPM_TOKEN]", CategoryAPITokens, SeverityHigh, 10),
	fixedPattern("pypi_token", "PyPI API Token",
		`\bpypi-AgEIcHlwaS5vcmc[A-Za-z0-9_\-]{32,}`,
		"[PYPI_TOKEN]", CategoryAPITokens, SeverityHigh, 10),
	fixedPattern("telegram_bot_token", "Telegram Bot Token",
		`\b\d{8,10}:AA[A-Za-z0-9_\-]{33}`,
		"[TELEGRAM_TOKEN]", CategoryAPITokens, SeverityHigh, 15),
	fixedPattern("openai_key", "OpenAI API Key",
		`\bsk-(?:proj-|svcacct-|admin-)?[A-Za-z0-9_\-]{32,}`,
		"[OPENAI_KEY]", CategoryAPITokens, SeverityHigh, 20),
	fixedPattern("stripe_publishable_key", "Stripe Publishable Key",
		`\bpk_live_[A-Za-z0-9]{24,247}\b`,
		"[STRIPE_PUB_KEY]", CategoryAPITokens, SeverityMedium, 20),
	fixedPattern("jwt_token", "JSON Web Token",
		`\beyJ[A-Za-z0-9_\-]{8,}\.[A-Za-z0-9_\-]{8,}\.[A-Za-z0-9_\-]{8,}`,
		"[JWT]", CategoryAPITokens, SeverityMedium, 30),
	contextPattern("generic_api_key", "Generic API Key",
		`(?i)\b((?:api|access|auth)[_\-]?(?:key|token)['"]?\s*[:=]\s*['"]?)([A-Za-z0-9_\-\.]{16,})(['"]?)`,
		`${1}[API_KEY]${3}`, "API_KEY",
		CategoryAPITokens, SeverityMedium, 100),
	inactive(contextPattern("generic_secret", "Generic Secret Assignment",
		`(?i)\b(secret['"]?\s*[:=]\s*['"]?)([^\s'"]{8,})(['"]?)`,
		`${1}[SECRET]${3}`, "SECRET",
		CategoryAPITokens, SeverityMedium, 100)),
	inactive(fixedPattern("base64_blob", "Base64 Data Blob",
		`\b[A-Za-z0-9+/]{48,}={0,2}`,
		"[BASE64_DATA]", CategoryAPITokens, SeverityLow, 110)),

	// passwords
	fixedPattern("bcrypt_hash", "bcrypt Hash",
		`\$2[abxy]\$\d{2}\$[./A-Za-z0-9]{53}`,
		"[BCRYPT_HASH]", CategoryPasswords, SeverityMedium, 30),
	contextPattern("password_assignment", "Password Assignment",
		`(?i)\b((?:password|passwd|pwd|passphrase)['"]?\s*[:=]\s*['"]?)([^\s'"]{6,})(['"]?)`,
		`${1}[PASS]${3}`, "PASS",
		CategoryPasswords, SeverityHigh, 40),
	contextPattern("url_credentials", "URL Credentials",
		`(://[^/\s:@]+:)([^@\s]+)@`,
		`${1}[PASS]@`, "PASS",
		CategoryPasswords, SeverityHigh, 50),

	// pii (off by default)
	fixedPattern("ssn", "US Social Security Number",
		`\b\d{3}-\d{2}-\d{4}\b`,
		"[SSN]", CategoryPII, SeverityHigh, 40),
	fixedPattern("credit_card", "Payment Card Number",
		`\b(?:4\d{3}|5[1-5]\d{2}|3[47]\d{2}|6(?:011|5\d{2}))[ \-]?(?:\d{4}[ \-]?){2}\d{3,4}\b`,
		"[CARD]", CategoryPII, SeverityHigh, 40),
	fixedPattern("email_address", "Email Address",
		`\b[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}\b`,
		"[EMAIL]", CategoryPII, SeverityMedium, 70),
	fixedPattern("phone_number", "Phone Number",
		`\+\d{1,3}[ \-]?\(?\d{1,4}\)?(?:[ \-]?\d{2,4}){2,3}\b`,
		"[PHONE]", CategoryPII, SeverityLow, 75),

	// network (off by default)
	fixedPattern("mac_address", "MAC Address",
		`\b(?:[0-9A-Fa-f]{2}[:\-]){5}[0-9A-Fa-f]{2}\b`,
		"[MAC]", CategoryNetwork, SeverityLow, 55),
	fixedPattern("ipv4_address", "IPv4 Address",
		`\b(?:\d{1,3}\.){3}\d{1,3}\b`,
		"[IP]", CategoryNetwork, SeverityLow, 60),
	fixedPattern("ipv6_address", "IPv6 Address",
		`\b(?:[0-9a-fA-F]{1,4}:){2,7}[0-9a-fA-F]{1,4}\b`,
		"[IPV6]", CategoryNetwork, SeverityLow, 60),
	fixedPattern("internal_hostname", "Internal Hostname",
		`\b[a-zA-Z0-9][a-zA-Z0-9\-]*\.(?:internal|local|corp|lan|intranet)\b`,
		"[HOSTNAME]", CategoryNetwork, SeverityLow, 65),
}

// BuiltinPatterns returns a copy of the built-in catalog in registration
// order.
func BuiltinPatterns() []Pattern {
	out := make([]Pattern, len(builtinPatterns))
	copy(out, builtinPatterns)
	return out
}

// builtinLabels collects the base placeholder labels the catalog emits.
// Custom patterns may not reuse them.
func builtinLabels() map[string]struct{} {
	labels := make(map[string]struct{}, len(builtinPatterns))
	for _, p := range builtinPatterns {
		labels[p.Label] = struct{}{}
	}
	return labels
}
