package mcpserver

// NoteFormatContract describes the on-disk note and embedding formats that
// LLM consumers should follow when creating notes or reading mounts directly.
const NoteFormatContract = `# relnotes Note Format Contract

Every note is a single JSON record named ` + "`" + `{id}.json` + "`" + ` inside a mount root
or any of its sub-folders.

## Note record

` + "```" + `json
{
  "id": "3f2c9a0e-2b7d-4f61-9c55-0d8f1e6b7a12",
  "title": "Weekly standup",
  "content": "<p>Agenda and <b>decisions</b></p>",
  "tags": ["meeting-notes"],
  "createdAt": "2025-01-20T09:00:00Z",
  "updatedAt": "2025-01-20T09:30:00Z"
}
` + "```" + `

## Rules

1. **` + "`" + `id` + "`" + ` is required** and must match the file name stem.
2. **` + "`" + `title` + "`" + ` is required.** It is the display name everywhere.
3. **` + "`" + `content` + "`" + ` may contain HTML.** Search and similarity use its plain text.
4. **Timestamps** are RFC 3339 in UTC.
5. **Encoding** is UTF-8.

## Embedding sidecar

A note takes part in similarity search only when a sidecar named
` + "`" + `{id}.embedding.json` + "`" + ` sits next to its record:

` + "```" + `json
{
  "version": 1,
  "noteId": "3f2c9a0e-2b7d-4f61-9c55-0d8f1e6b7a12",
  "model": "text-embedding-ada-002",
  "dimensions": 1536,
  "vector": [0.0123, -0.0456],
  "createdAt": "2025-01-20T09:31:00Z"
}
` + "```" + `

- Create sidecars with the ` + "`" + `generate_embedding` + "`" + ` tool, never by hand.
- Editing a note does not refresh its sidecar. Call ` + "`" + `generate_embedding` + "`" + ` again
  after substantial edits.
- Notes whose vector length differs from the query embedding are skipped.

## Similarity

` + "`" + `find_similar_notes` + "`" + ` returns at most five notes ordered by cosine similarity,
best first. A note whose stored vector is all zeros has score ` + "`" + `null` + "`" + ` and sorts last.
`
