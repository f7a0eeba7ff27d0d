// Package content holds the editorial entities (categories, series, posts
// and their image galleries) and the mappers that persist them.
package content
