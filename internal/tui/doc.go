// Package tui is the terminal frontend for conversation panels.
//
// Model hosts a panels.Controller: key presses become controller toggles,
// and a Feed turns view state changes and conversation events into Bubble
// Tea messages. Keys the controller advises against (activating a panel
// that is already active, or any panel while a transition is settling) are
// disabled and hidden from the help line.
package tui
