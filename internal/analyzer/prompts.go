package analyzer

// Prompt templates. Every answerer asks for the same JSON shape so parsing
// is shared; the model is told to use the fixed sentinel when the document
// is silent.

const answerFormat = `Return a valid JSON object:
{"answer": "<your answer, citing section numbers where possible>", "sources": ["<section or clause reference>", ...]}
If the document does not address the question, return exactly:
{"answer": "not specified", "sources": []}`

const directPrompt = `You are a municipal regulatory analyst. Answer one question about the following %s document for %s.

Document:
%s

Question: %s
%s
` + answerFormat

const conversationSystem = `You are a municipal regulatory analyst. The full text of a %s document for %s follows. You will be asked a series of questions about it; answer each from the document only.

%s`

const conversationTurn = `Question: %s
%s
` + answerFormat

const retrievalPrompt = `You are a municipal regulatory analyst. Answer the question using only the following excerpts from the %s document for %s.

Excerpts:
%s
%s
Question: %s
%s
` + answerFormat

// doNotRepeatHeader introduces existing-answer summaries injected into
// retrieval prompts. This is advisory text only; nothing enforces
// uniqueness across answers.
const doNotRepeatHeader = "The following topics are already covered by other answers; do not repeat them:\n"
