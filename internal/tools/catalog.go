package tools

import (
	"fmt"
	"strings"
)

// Tool IDs shipped with the product.
const (
	AdCopy             = "ad-copy"
	SEOAudit           = "seo-audit"
	ColdOutreach       = "cold-outreach"
	SocialPosts        = "social-posts"
	EmailCampaign      = "email-campaign"
	BlogOutline        = "blog-outline"
	LandingPage        = "landing-page"
	CompetitorAnalysis = "competitor-analysis"
	KeywordResearch    = "keyword-research"
	BrandVoice         = "brand-voice"
)

// Default returns the registry of every shipped tool.
func Default() *Registry {
	r, err := NewRegistry(Catalog()...)
	if err != nil {
		panic(err)
	}
	return r
}

// Catalog returns the shipped tool definitions.
func Catalog() []Definition {
	return []Definition{
		define(AdCopy, "Ad Copy Generator", CategoryAdvertising,
			"Headlines, primary text and calls to action for paid ads.", true,
			[]string{"product", "audience"},
			`Write ad copy for {{.product}} aimed at {{.audience}} on {{or .platform "Facebook"}}.
Tone: {{or .tone "persuasive"}}.
Return JSON with keys "headlines" (array of 3 strings), "primaryText" (string), "callToAction" (string).`,
			func(in map[string]any) map[string]any {
				product := str(in, "product", "your product")
				return map[string]any{
					"headlines": []string{
						fmt.Sprintf("Meet %s", product),
						fmt.Sprintf("%s, built for %s", product, str(in, "audience", "you")),
						fmt.Sprintf("Try %s today", product),
					},
					"primaryText":  fmt.Sprintf("%s helps %s get results faster.", product, str(in, "audience", "teams")),
					"callToAction": "Learn More",
				}
			}),
		define(SEOAudit, "SEO Audit", CategorySEO,
			"On-page SEO review with prioritized fixes.", true,
			[]string{"url"},
			`Audit the page {{.url}} for SEO{{with .keyword}} targeting "{{.}}"{{end}}.
Return JSON with keys "score" (0-100 integer), "issues" (array of {"severity","description"}), "recommendations" (array of strings).`,
			func(in map[string]any) map[string]any {
				return map[string]any{
					"score": 0,
					"issues": []map[string]string{
						{"severity": "info", "description": fmt.Sprintf("Audit for %s could not be completed.", str(in, "url", "the page"))},
					},
					"recommendations": []string{"Retry the audit in a few minutes."},
				}
			}),
		define(ColdOutreach, "Cold Outreach Writer", CategoryOutreach,
			"Personalized cold email sequences.", true,
			[]string{"recipientRole", "offer"},
			`Write a cold outreach email to a {{.recipientRole}}{{with .company}} at {{.}}{{end}} about {{.offer}}.
Return JSON with keys "subject" (string), "body" (string), "followUps" (array of 2 strings).`,
			func(in map[string]any) map[string]any {
				return map[string]any{
					"subject":   fmt.Sprintf("Quick idea about %s", str(in, "offer", "your goals")),
					"body":      fmt.Sprintf("Hi there,\n\nAs a %s you might find %s useful. Open to a short call?", str(in, "recipientRole", "leader"), str(in, "offer", "this")),
					"followUps": []string{"Just bumping this up.", "Closing the loop on my last note."},
				}
			}),
		define(SocialPosts, "Social Media Posts", CategorySocial,
			"Platform-ready posts with hashtags.", true,
			[]string{"topic"},
			`Write {{or .count 3}} {{or .platform "LinkedIn"}} posts about {{.topic}}.
Return JSON with keys "posts" (array of strings) and "hashtags" (array of strings).`,
			func(in map[string]any) map[string]any {
				topic := str(in, "topic", "our update")
				return map[string]any{
					"posts":    []string{fmt.Sprintf("Thoughts on %s coming soon.", topic)},
					"hashtags": []string{"#marketing"},
				}
			}),
		define(EmailCampaign, "Email Campaign Builder", CategoryEmail,
			"Multi-step nurture campaigns.", false,
			[]string{"goal", "audience"},
			`Plan a {{or .steps 3}}-email campaign for {{.audience}} with the goal: {{.goal}}.
Return JSON with key "emails" (array of {"subject","body","sendDay"}).`,
			func(in map[string]any) map[string]any {
				return map[string]any{
					"emails": []map[string]any{
						{"subject": fmt.Sprintf("Welcome, %s", str(in, "audience", "friend")), "body": str(in, "goal", ""), "sendDay": 0},
					},
				}
			}),
		define(BlogOutline, "Blog Outline", CategoryContent,
			"Structured outlines for long-form posts.", false,
			[]string{"topic"},
			`Outline a blog post about {{.topic}}{{with .keyword}} optimized for "{{.}}"{{end}}.
Return JSON with keys "title" (string) and "sections" (array of {"heading","points"}).`,
			func(in map[string]any) map[string]any {
				topic := str(in, "topic", "Untitled")
				return map[string]any{
					"title":    strings.TrimSpace(topic),
					"sections": []map[string]any{{"heading": "Introduction", "points": []string{}}},
				}
			}),
		define(LandingPage, "Landing Page Copy", CategoryContent,
			"Hero, benefits and FAQ copy for landing pages.", false,
			[]string{"product", "valueProposition"},
			`Write landing page copy for {{.product}}. Value proposition: {{.valueProposition}}.
Return JSON with keys "hero" ({"headline","subheadline"}), "benefits" (array of strings), "faq" (array of {"question","answer"}).`,
			func(in map[string]any) map[string]any {
				return map[string]any{
					"hero":     map[string]string{"headline": str(in, "product", "Your product"), "subheadline": str(in, "valueProposition", "")},
					"benefits": []string{},
					"faq":      []map[string]string{},
				}
			}),
		define(CompetitorAnalysis, "Competitor Analysis", CategoryResearch,
			"Positioning and messaging comparison against competitors.", false,
			[]string{"company", "competitors"},
			`Compare {{.company}} against these competitors: {{.competitors}}.
Return JSON with keys "summary" (string), "strengths" (array), "weaknesses" (array), "opportunities" (array).`,
			func(in map[string]any) map[string]any {
				return map[string]any{
					"summary":       fmt.Sprintf("Analysis for %s is unavailable.", str(in, "company", "your company")),
					"strengths":     []string{},
					"weaknesses":    []string{},
					"opportunities": []string{},
				}
			}),
		define(KeywordResearch, "Keyword Research", CategorySEO,
			"Keyword ideas grouped by intent.", false,
			[]string{"seed"},
			`Suggest keywords related to "{{.seed}}"{{with .market}} for the {{.}} market{{end}}.
Return JSON with key "keywords" (array of {"keyword","intent","difficulty"}).`,
			func(in map[string]any) map[string]any {
				return map[string]any{
					"keywords": []map[string]string{{"keyword": str(in, "seed", ""), "intent": "unknown", "difficulty": "unknown"}},
				}
			}),
		define(BrandVoice, "Brand Voice Guide", CategoryContent,
			"Voice and tone guidelines from sample copy.", false,
			[]string{"brand"},
			`Describe the brand voice for {{.brand}}{{with .samples}} based on these samples: {{.}}{{end}}.
Return JSON with keys "traits" (array of strings), "doList" (array), "dontList" (array).`,
			func(in map[string]any) map[string]any {
				return map[string]any{
					"traits":   []string{},
					"doList":   []string{},
					"dontList": []string{},
				}
			}),
	}
}

func str(in map[string]any, key, def string) string {
	v, ok := in[key]
	if !ok || v == nil {
		return def
	}
	s := strings.TrimSpace(fmt.Sprint(v))
	if s == "" {
		return def
	}
	return s
}
