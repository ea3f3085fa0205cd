package mcpserver

// FormatURI is the resource URI of PostFormatContract.
const FormatURI = "quill://post-format"

// PostFormatContract describes the post format that LLM consumers should
// follow when writing or checking posts.
const PostFormatContract = `# Quill Post Format

Every post is a UTF-8 text file ending in ` + "`.md`" + ` or ` + "`.markdown`" + `, made of a
metadata block followed by a free-form Markdown body.

## Structure

` + "```" + `markdown
---
title: Modules in the browser        # REQUIRED - non-empty text
date: 2016-03-01 09:30:00 +0800      # REQUIRED - date-time with an explicit offset
categories: [frontend]               # OPTIONAL - list, default []
tags:                                # OPTIONAL - list, default []
  - commonjs
  - requirejs
toc: true                            # OPTIONAL - true or false
series: modules                      # any other key is kept as-is
---
Body text in Markdown, kept exactly as written.
` + "```" + `

## Rules

1. The first line MUST be ` + "`---`" + `. A second ` + "`---`" + ` line closes the metadata block.
   Everything after the closing line is the body, byte for byte.
2. The metadata block is YAML ` + "`key: value`" + ` entries. Keys must be unique.
3. ` + "`title`" + ` and ` + "`date`" + ` are required and must not be empty.
4. ` + "`date`" + ` accepts ` + "`2006-01-02 15:04:05 -0700`" + `, ` + "`2006-01-02 15:04:05 -07:00`" + `,
   RFC 3339 (` + "`2006-01-02T15:04:05Z`" + `), and minute precision ` + "`2006-01-02 15:04 -0700`" + `.
   Fractional seconds are allowed. Dates without an offset are rejected unless the
   site sets a default timezone.
5. ` + "`categories`" + ` and ` + "`tags`" + ` accept a bracketed list ` + "`[a, \"b c\"]`" + `, one ` + "`- item`" + `
   per line, or a single bare value. Items are text; nested lists are rejected.
   Order is kept and duplicates are allowed.
6. ` + "`toc`" + ` must be ` + "`true`" + ` or ` + "`false`" + `.

## Errors

Validation reports exactly one of:

- ` + "`malformed_document`" + ` - delimiters missing, block is not YAML key/value entries, or a key repeats.
- ` + "`missing_required_field`" + ` - ` + "`title`" + ` or ` + "`date`" + ` absent or empty (title is checked first).
- ` + "`invalid_field_value`" + ` - a recognized key holds a value of the wrong shape, e.g. ` + "`date: not-a-date`" + `.
`
