// Command parley runs the multi-agent conversation server.
package main

func main() {
	Execute()
}
