// Package web implements the admin panel's controllers and views.
//
// App owns the route table and every controller. Controllers embed
// Controller, which carries the shared request helpers: the current user,
// privilege checks, CSRF tokens, flash messages, redirects, template
// rendering and AJAX replies.
//
// Templates and static assets are embedded. With dev.reload_templates set,
// templates are read from dev.template_dir instead and reparsed when a file
// changes.
package web
