package ai

import (
	"context"
	"fmt"
	"strings"
)

// FallbackProvider is the deterministic local pattern matcher used when no
// model backend is reachable. It never touches the network and never fails.
type FallbackProvider struct {
	CharacterName string
	Bio           []string
}

func NewFallbackProvider(characterName string, bio []string) *FallbackProvider {
	if characterName == "" {
		characterName = "Coo"
	}
	return &FallbackProvider{CharacterName: characterName, Bio: bio}
}

func (p *FallbackProvider) Chat(ctx context.Context, messages []Message) (string, error) {
	_ = ctx

	var lastUser string
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			lastUser = messages[i].Content
			break
		}
	}

	msg := strings.ToLower(lastUser)
	switch {
	case strings.Contains(msg, "hello") || strings.Contains(msg, "hi") || strings.Contains(msg, "こんにちは"):
		return fmt.Sprintf("Hello! I'm %s, your on-chain AI assistant built on elizaOS. "+
			"Note: I'm running in fallback mode (local dev). "+
			"Deploy to mainnet for full Llama 3.1 powered responses!", p.CharacterName), nil
	case strings.Contains(msg, "who are you") || strings.Contains(msg, "what are you"):
		return fmt.Sprintf("I'm %s, an AI agent built on the elizaOS framework, running on the Internet Computer. %s",
			p.CharacterName, strings.Join(p.Bio, " ")), nil
	case strings.Contains(msg, "elizaos") || strings.Contains(msg, "eliza"):
		return fmt.Sprintf("I'm %s - built on elizaOS, the leading open-source framework for autonomous AI agents. "+
			"elizaOS enables developers to create intelligent agents that can operate across multiple platforms. "+
			"I'm deployed on the Internet Computer for fully decentralized, on-chain AI!", p.CharacterName), nil
	case strings.Contains(msg, "internet computer") || strings.Contains(msg, "icp"):
		return "The Internet Computer is a blockchain that runs at web speed and hosts fully decentralized applications. " +
			"On mainnet, I use Llama 3.1 8B for intelligent responses!", nil
	default:
		return fmt.Sprintf("[Fallback Mode] I'm %s - built on elizaOS, running locally without IC LLM Canister. "+
			"Deploy me to mainnet for full AI capabilities with Llama 3.1 8B! "+
			"Your message: '%s'", p.CharacterName, lastUser), nil
	}
}
