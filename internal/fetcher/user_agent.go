package fetcher

import (
	"math/rand"
	"strings"
	"time"
)

// DefaultUserAgent is sent when neither a custom agent nor a browser family
// is requested.
const DefaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

type UserAgentType string

const (
	UserAgentAuto    UserAgentType = "auto"
	UserAgentChrome  UserAgentType = "chrome"
	UserAgentFirefox UserAgentType = "firefox"
	UserAgentSafari  UserAgentType = "safari"
	UserAgentEdge    UserAgentType = "edge"
)

var userAgents = map[UserAgentType][]string{
	UserAgentChrome: {
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		DefaultUserAgent,
		"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	},
	UserAgentFirefox: {
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 14.1; rv:121.0) Gecko/20100101 Firefox/121.0",
		"Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0",
	},
	UserAgentSafari: {
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 14_1_2) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 14_0) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Safari/605.1.15",
	},
	UserAgentEdge: {
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 Edg/120.0.0.0",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 Edg/120.0.0.0",
	},
}

type UserAgentSelector struct {
	rng *rand.Rand
}

func NewUserAgentSelector() *UserAgentSelector {
	return &UserAgentSelector{
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Resolve picks the User-Agent for a request: an explicit custom string
// wins, then a browser family, then DefaultUserAgent.
func (uas *UserAgentSelector) Resolve(custom, browserAgent string) string {
	if custom != "" {
		return custom
	}
	if strings.TrimSpace(browserAgent) == "" {
		return DefaultUserAgent
	}
	return uas.GetUserAgent(browserAgent)
}

// GetUserAgent returns a user agent string based on the specified type
// If uaType is "auto" it randomly selects from all available user agents
// Unknown values are returned as-is so a literal agent string can be passed
func (uas *UserAgentSelector) GetUserAgent(uaType string) string {
	normalized := strings.ToLower(strings.TrimSpace(uaType))

	switch UserAgentType(normalized) {
	case "":
		return DefaultUserAgent
	case UserAgentAuto:
		return uas.getRandomFromAll()
	case UserAgentChrome, UserAgentFirefox, UserAgentSafari, UserAgentEdge:
		return uas.getRandomFromType(UserAgentType(normalized))
	default:
		return uaType
	}
}

func (uas *UserAgentSelector) getRandomFromAll() string {
	var all []string
	for _, t := range []UserAgentType{UserAgentChrome, UserAgentFirefox, UserAgentSafari, UserAgentEdge} {
		all = append(all, userAgents[t]...)
	}
	return all[uas.rng.Intn(len(all))]
}

func (uas *UserAgentSelector) getRandomFromType(uaType UserAgentType) string {
	agents, ok := userAgents[uaType]
	if !ok || len(agents) == 0 {
		return uas.getRandomFromAll()
	}
	return agents[uas.rng.Intn(len(agents))]
}
