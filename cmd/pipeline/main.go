// Command pipeline runs a DOT-graph pipeline to completion.
package main

func main() {
	Execute()
}
