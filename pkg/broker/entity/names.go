package entity

import (
	"strings"

	"github.com/oladejiayo/localzure/pkg/broker/sberr"
)

const (
	maxEntityNameLength       = 260
	maxSubscriptionNameLength = 50
)

var reservedNames = map[string]struct{}{
	"system": {}, "null": {}, "true": {}, "false": {}, "exec": {},
	"drop": {}, "delete": {}, "insert": {}, "update": {}, "create": {},
	"alter": {}, "grant": {}, "revoke": {},
}

const forbiddenChars = "%&?#@!*()<>=+"

func isAlphanumeric(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}

// ValidateEntityName checks a queue or topic name against the namespace
// naming rules.
func ValidateEntityName(name string) error {
	if len(name) == 0 || len(name) > maxEntityNameLength {
		return sberr.NewInvalidEntityName(name, "name must be 1-260 characters")
	}
	if !isAlphanumeric(name[0]) || !isAlphanumeric(name[len(name)-1]) {
		return sberr.NewInvalidEntityName(name, "name must start and end with a letter or digit")
	}
	if _, ok := reservedNames[strings.ToLower(name)]; ok {
		return sberr.NewInvalidEntityName(name, "name is a reserved word")
	}
	if strings.ContainsAny(name, forbiddenChars) {
		return sberr.NewInvalidEntityName(name, "name contains a forbidden character")
	}
	for _, seq := range []string{"//", "__", ".."} {
		if strings.Contains(name, seq) {
			return sberr.NewInvalidEntityName(name, "name must not contain "+seq)
		}
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		if isAlphanumeric(c) || c == '_' || c == '-' || c == '.' {
			continue
		}
		return sberr.NewInvalidEntityName(name, "name contains an invalid character")
	}
	return nil
}

// ValidateSubscriptionName checks a subscription or rule name. The rule
// namespace shares the subscription constraints except that "$Default" is
// allowed for the rule created at subscription birth.
func ValidateSubscriptionName(name string) error {
	if len(name) == 0 || len(name) > maxSubscriptionNameLength {
		return sberr.NewInvalidEntityName(name, "name must be 1-50 characters")
	}
	if !isAlphanumeric(name[0]) || !isAlphanumeric(name[len(name)-1]) {
		return sberr.NewInvalidEntityName(name, "name must start and end with a letter or digit")
	}
	for i := 0; i < len(name); i++ {
		if !isAlphanumeric(name[i]) && name[i] != '-' {
			return sberr.NewInvalidEntityName(name, "name may contain letters, digits, and hyphens only")
		}
	}
	return nil
}

func validateRuleName(name string) error {
	if name == DefaultRuleName {
		return nil
	}
	return ValidateSubscriptionName(name)
}
