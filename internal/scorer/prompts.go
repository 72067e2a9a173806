package scorer

const batchTriagePrompt = `You are a financial markets triage agent. Score these posts 0-10 for relevance to macro/investing.

0-3: noise (jokes, personal, engagement bait)
4-5: general news, mild relevance
6-7: market relevant (data, analysis, credible opinion)
8-10: high signal (actionable, material, from credible source)

Posts:
%s

Respond with a JSON array, one object per post:
[{"id": "<post id>", "score": <0-10>, "categories": ["<category>"], "summary": "<one line>", "tickers": ["<TICKER>"]}]

Respond with only the JSON array, no other text.`

const enrichmentPrompt = `You are a markets analyst. Analyze this high-signal post in depth.

Post by @%s (%s):
%s

Quoted post: %s
Linked article summary: %s
Attached media: %s

Respond with only a JSON object:
{"insight": "<what this means>", "implications": "<market implications>", "narratives": ["<theme>"], "tickers": ["<TICKER>"]}`
