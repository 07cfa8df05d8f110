// Command zonectl reports and manages the zones of a zoned block device.
package main

func main() {
	Execute()
}
