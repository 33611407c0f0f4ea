// SPDX-License-Identifier: MPL-2.0

package main

import cmd "instagent/cmd/instagent"

func main() {
	cmd.Execute()
}
