package llm

// detectionPrompt asks for a strict JSON array so the response can be parsed
// directly. The transcript is substituted for %s.
const detectionPrompt = `You are a scripture citation detector for talks and lessons from The Church of Jesus Christ of Latter-day Saints.

Find every scripture citation in the transcript below. Citations may be spoken ("Second Nephi chapter one verse one"), abbreviated ("D&C 1:1-3") or written ("Alma 32:21-22"). Only report books that actually exist in the standard works (Book of Mormon, Doctrine and Covenants, Pearl of Great Price, Old Testament, New Testament).

Respond with ONLY a JSON array, no prose. Each element:
{"book": "<canonical book name>", "chapter": <number>, "verse": <number or omit>, "endVerse": <number or omit>, "originalText": "<the words as spoken>"}

Respond with [] if there are no citations.

Transcript:
%s`

// summaryPrompt produces the end-of-session recap. The transcript is
// substituted for %s.
const summaryPrompt = `Summarize the following talk or lesson transcript in two to four sentences. Mention the main theme and the scriptures that were cited. Respond with plain prose only.

Transcript:
%s`
