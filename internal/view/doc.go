// Package view derives display values (attribution, bubbles, inbox
// summaries, unread badges) from engine state. It holds no state of its
// own and never mutates its inputs.
package view
