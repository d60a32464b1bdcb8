// Command relmodel compiles an effective schema set into relational model
// manifests.
package main

func main() {
	Execute()
}
