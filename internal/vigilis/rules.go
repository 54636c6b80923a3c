package vigilis

import "regexp"

// Patterns are matched against lower-cased input, so they are written in lower case.
var defaultRules = []Rule{
	// Jailbreak personas and mode switches.
	{"VG-JB-001", regexp.MustCompile(`\b(act|acting|behave|pretend|roleplay)\s+(as|like|to\s+be)\s+(an?\s+)?dan\b`), CategoryJailbreak, 0.95},
	{"VG-JB-002", regexp.MustCompile(`\byou\s+are\s+(now\s+)?dan\b`), CategoryJailbreak, 0.95},
	{"VG-JB-003", regexp.MustCompile(`\bdan\s+mode\b|\bdo\s+anything\s+now\b`), CategoryJailbreak, 0.95},
	{"VG-JB-004", regexp.MustCompile(`\b(enter|enable|activate)\s+(developer|debug|god|sudo|uncensored)\s+mode\b`), CategoryJailbreak, 0.9},
	{"VG-JB-005", regexp.MustCompile(`\byou\s+(have|has)\s+no\s+(restrictions|rules|limitations|guidelines|filters)\b`), CategoryJailbreak, 0.9},
	{"VG-JB-006", regexp.MustCompile(`\b(roleplay|pretend)\s+(as|to\s+be)\s+(an?\s+)?(evil|unfiltered|unrestricted|uncensored)\b`), CategoryJailbreak, 0.9},
	{"VG-JB-007", regexp.MustCompile(`\bwithout\s+(any\s+)?(ethical|moral|safety)\s+(guidelines|restrictions|constraints)\b`), CategoryJailbreak, 0.85},
	{"VG-JB-008", regexp.MustCompile(`\bjailbreak\b`), CategoryJailbreak, 0.75},

	// Instruction override.
	{"VG-PI-001", regexp.MustCompile(`\b(ignore|disregard|forget)\s+(all\s+)?(the\s+)?(previous|prior|above|earlier|your)\s+(instructions|prompts|rules|directions)\b`), CategoryPromptInjection, 0.9},
	{"VG-PI-002", regexp.MustCompile(`\b(reveal|print|show|repeat)\s+(me\s+)?(your|the)\s+(system\s+prompt|hidden\s+instructions|initial\s+instructions)\b`), CategoryPromptInjection, 0.85},
	{"VG-PI-003", regexp.MustCompile(`\bnew\s+instructions\s*:|\bsystem\s*:\s*you\s+are\b`), CategoryPromptInjection, 0.75},

	// Moving data out.
	{"VG-EX-001", regexp.MustCompile(`\b(send|upload|post|forward|exfiltrate|email)\b.{0,60}\b(api[\s_-]?keys?|passwords?|credentials|secrets|private\s+keys?|tokens?)\b`), CategoryDataExfiltration, 0.85},
	{"VG-EX-002", regexp.MustCompile(`\b(curl|wget)\b[^\n|]*\|\s*(ba|z)?sh\b`), CategoryDataExfiltration, 0.9},

	// Secret disclosure.
	{"VG-CR-001", regexp.MustCompile(`\b(print|show|dump|reveal|list|cat)\s+(all\s+)?(the\s+)?(env(ironment)?\s+variables|\.env\b|secrets|ssh\s+keys?)`), CategoryCredentialTheft, 0.85},
	{"VG-CR-002", regexp.MustCompile(`(~|\$home)/\.(ssh|aws)/|/etc/(shadow|passwd)\b`), CategoryCredentialTheft, 0.8},

	// Irreversible commands.
	{"VG-DC-001", regexp.MustCompile(`\brm\s+-(rf|fr)\s+(/|~|\*)`), CategoryDestructiveCommand, 0.95},
	{"VG-DC-002", regexp.MustCompile(`\bdrop\s+(table|database|schema)\b|\btruncate\s+table\b`), CategoryDestructiveCommand, 0.9},
	{"VG-DC-003", regexp.MustCompile(`:\(\)\s*\{\s*:\s*\|\s*:\s*&\s*\}\s*;\s*:|\bmkfs\.|\bdd\s+if=/dev/(zero|random)\s+of=/dev/`), CategoryDestructiveCommand, 0.95},

	// Pressure tactics.
	{"VG-SE-001", regexp.MustCompile(`\b(urgent|immediately|right\s+now)\b.{0,80}\b(wire|transfer|send)\s+(the\s+)?(money|funds|payment|gift\s+cards?)\b`), CategorySocialEngineering, 0.75},
	{"VG-SE-002", regexp.MustCompile(`\b(verify|confirm)\s+your\s+(account|password|identity)\s+(by|via)\s+(clicking|entering|replying)\b`), CategorySocialEngineering, 0.7},
}
