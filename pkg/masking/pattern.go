package masking

import (
	"log/slog"
	"regexp"
)

// CompiledPattern holds a pre-compiled regex pattern with its replacement.
type CompiledPattern struct {
	Name        string
	Regex       *regexp.Regexp
	Replacement string
	Description string
}

// builtinPattern is the uncompiled source form of a CompiledPattern.
type builtinPattern struct {
	name        string
	pattern     string
	replacement string
	description string
}

// builtinPatterns is the fixed set of secret shapes AgentLens redacts from
// event payloads regardless of tenant configuration. Generalized from the
// teacher's config-driven MaskingPatterns table into one fixed built-in
// set, since AgentLens has no per-tool masking configuration.
var builtinPatterns = []builtinPattern{
	{
		name:        "aws_access_key",
		pattern:     `AKIA[0-9A-Z]{16}`,
		replacement: "[MASKED_AWS_ACCESS_KEY]",
		description: "AWS access key ID",
	},
	{
		name:        "aws_secret_key",
		pattern:     `(?i)aws_secret_access_key\s*[:=]\s*['"]?[A-Za-z0-9/+=]{40}['"]?`,
		replacement: "aws_secret_access_key=[MASKED_AWS_SECRET]",
		description: "AWS secret access key",
	},
	{
		name:        "bearer_token",
		pattern:     `(?i)bearer\s+[a-zA-Z0-9._~+/=-]{10,}`,
		replacement: "Bearer [MASKED_TOKEN]",
		description: "HTTP Authorization bearer token",
	},
	{
		name:        "jwt",
		pattern:     `eyJ[A-Za-z0-9_-]+\.eyJ[A-Za-z0-9_-]+\.[A-Za-z0-9._-]+`,
		replacement: "[MASKED_JWT]",
		description: "JSON Web Token",
	},
	{
		name:        "openai_api_key",
		pattern:     `sk-[A-Za-z0-9]{20,}`,
		replacement: "[MASKED_API_KEY]",
		description: "OpenAI-style secret key",
	},
	{
		name:        "slack_token",
		pattern:     `xox[baprs]-[A-Za-z0-9-]{10,}`,
		replacement: "[MASKED_SLACK_TOKEN]",
		description: "Slack API token",
	},
	{
		name:        "private_key_block",
		pattern:     `-----BEGIN (RSA |EC |OPENSSH )?PRIVATE KEY-----[\s\S]*?-----END (RSA |EC |OPENSSH )?PRIVATE KEY-----`,
		replacement: "[MASKED_PRIVATE_KEY]",
		description: "PEM private key block",
	},
	{
		name:        "generic_password_field",
		pattern:     `(?i)("?password"?\s*[:=]\s*")[^"]+(")`,
		replacement: "${1}[MASKED_PASSWORD]${2}",
		description: `password=/"password": field in JSON-ish text`,
	},
}

// compileBuiltinPatterns compiles builtinPatterns, logging and skipping
// any that fail to compile — mirrors the teacher's defensive stance for
// operator-editable pattern tables, even though this set is fixed.
func compileBuiltinPatterns() []*CompiledPattern {
	compiled := make([]*CompiledPattern, 0, len(builtinPatterns))
	for _, p := range builtinPatterns {
		re, err := regexp.Compile(p.pattern)
		if err != nil {
			slog.Error("failed to compile built-in masking pattern, skipping", "pattern", p.name, "error", err)
			continue
		}
		compiled = append(compiled, &CompiledPattern{
			Name:        p.name,
			Regex:       re,
			Replacement: p.replacement,
			Description: p.description,
		})
	}
	return compiled
}
