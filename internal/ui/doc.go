// Package ui implements an interactive terminal interface using bubbletea's Elm architecture.
//
// The TUI routes on the session state held by [session.Holder]:
//  1. [LoadingView] : spinner while the stored session is resolved
//  2. [OnboardingView] : nobody is signed in; continue as guest or sign in from the CLI
//  3. [HomeView] : pick a destination platform for the next conversion
//
// The (view) [Model] implements bubbletea/Elm's standard Init/Update/View pattern, receiving messages via the Msg union type.
//
// Keyboard navigation uses vim-style bindings (j/k, enter, g, r, q) with contextual help displayed via charmbracelet/bubbles/help.
package ui
