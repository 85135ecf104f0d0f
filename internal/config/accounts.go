package config

import (
	"encoding/json"
	"os"
	"strings"
)

// AccountsEnv names the environment variable holding the account list.
const AccountsEnv = "USERS_JSON"

// Account is one dashboard login.
type Account struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// ParseAccounts decodes either a JSON array of accounts or an object with a
// "users" array. Malformed input and entries without a username yield no
// accounts.
func ParseAccounts(raw string) []Account {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	var list []Account
	if strings.HasPrefix(raw, "[") {
		if err := json.Unmarshal([]byte(raw), &list); err != nil {
			return nil
		}
	} else {
		var wrapped struct {
			Users []Account `json:"users"`
		}
		if err := json.Unmarshal([]byte(raw), &wrapped); err != nil {
			return nil
		}
		list = wrapped.Users
	}

	accounts := make([]Account, 0, len(list))
	for _, a := range list {
		if strings.TrimSpace(a.Username) == "" {
			continue
		}
		accounts = append(accounts, a)
	}
	return accounts
}

// LoadAccounts reads the account list from USERS_JSON.
func LoadAccounts() []Account {
	return ParseAccounts(os.Getenv(AccountsEnv))
}
