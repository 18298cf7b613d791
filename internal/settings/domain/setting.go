package domain

// Setting is one flat key/value entry in the settings store. Writes are last-write-wins.
type Setting struct {
	Name  string
	Value string
}
