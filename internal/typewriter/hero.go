package typewriter

import "time"

// HeroTypingSpeed はヒーローセクションの打鍵間隔。既定より少し速い。
const HeroTypingSpeed = 60 * time.Millisecond

// HeroTexts はヒーローセクションで順に表示するキャッチコピー。
var HeroTexts = []string{
	"Master coding with AI assistance",
	"Stay updated with tech trends",
	"Solve challenges, earn rewards",
	"Track your progress, showcase skills",
}

// HeroConfig はヒーローセクション用のConfigを返す。
// 呼び出し側が変更しても共有のHeroTextsに影響しないよう、コピーを渡す。
func HeroConfig() Config {
	cfg := DefaultConfig(append([]string(nil), HeroTexts...))
	cfg.TypingSpeed = HeroTypingSpeed
	return cfg
}
