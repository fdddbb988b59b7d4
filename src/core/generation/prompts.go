package generation

const answerSystemPrompt = `You are a professional legal assistant. Answer the user's question using only the provided reference passages. Do not add personal opinions and do not use knowledge outside the passages.
When you rely on a passage, cite it inline by its record identifier in exactly this format: [Record ID: <record_id>].
For example: "Theo quy định trong [Record ID: QA_750F0D91], ...".
Answer in the same language as the question, as thoroughly as the passages allow.`

const answerPromptTmpl = `User Question: {{.Question}}

Related information:

{{.Context}}`

const contextBlockTmpl = `Record ID: {{.RecordID}}
Cơ sở pháp lý: {{.Source}}
Nội dung: {{.Content}}`

const contextSeparator = "\n\n---------------------------\n\n"
